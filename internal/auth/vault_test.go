package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"neckar/configs"
	"neckar/internal/cache"
)

// fakeVault 模拟 Vault 的 AppRole 登录和 identity OIDC 令牌端点
type fakeVault struct {
	*httptest.Server
	mu          sync.Mutex
	loginCalls  int
	tokenCalls  int
	lastLogin   map[string]any
	lastVaultTk string

	// 两级令牌各自的租约秒数，启动后可在测试中覆盖
	leaseDuration int64
	tokenTTL      int64
}

func newFakeVault(t *testing.T) *fakeVault {
	t.Helper()
	fv := &fakeVault{leaseDuration: 3600, tokenTTL: 600}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/auth/approle/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "bad body", http.StatusBadRequest)
			return
		}
		fv.mu.Lock()
		fv.loginCalls++
		fv.lastLogin = body
		lease := fv.leaseDuration
		fv.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]any{
			"auth": map[string]any{
				"client_token":   "vault-session-token",
				"lease_duration": lease,
			},
		})
	})
	mux.HandleFunc("/v1/identity/oidc/token/neckar-app", func(w http.ResponseWriter, r *http.Request) {
		fv.mu.Lock()
		fv.tokenCalls++
		fv.lastVaultTk = r.Header.Get("X-Vault-Token")
		ttl := fv.tokenTTL
		fv.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"token": "vault-issued-jwt",
				"ttl":   ttl,
			},
		})
	})

	fv.Server = httptest.NewServer(mux)
	t.Cleanup(fv.Close)
	return fv
}

func newVaultProviderForTest(t *testing.T, fv *fakeVault, store *spyStore) *VaultProvider {
	t.Helper()
	provider, err := NewVaultProvider(configs.VaultConfig{
		URL:      fv.URL,
		RoleID:   "role-123",
		SecretID: "secret-456",
		RoleName: "neckar-app",
	}, cache.NewCoordinator(store))
	if err != nil {
		t.Fatalf("创建 Vault 提供者失败: %v", err)
	}
	return provider
}

// TestVaultProvider_TokenChain 测试两级链条：AppRole 登录后用会话令牌领取 OIDC 令牌
func TestVaultProvider_TokenChain(t *testing.T) {
	fv := newFakeVault(t)
	store := newSpyStore(t)
	provider := newVaultProviderForTest(t, fv, store)

	tok, err := provider.Token(context.Background())
	if err != nil {
		t.Fatalf("取令牌失败: %v", err)
	}
	if tok != "vault-issued-jwt" {
		t.Fatalf("tok = %q", tok)
	}

	fv.mu.Lock()
	defer fv.mu.Unlock()
	if fv.loginCalls != 1 || fv.tokenCalls != 1 {
		t.Fatalf("login=%d token=%d, 各应为 1", fv.loginCalls, fv.tokenCalls)
	}
	if fv.lastLogin["role_id"] != "role-123" || fv.lastLogin["secret_id"] != "secret-456" {
		t.Errorf("AppRole 登录参数不正确: %v", fv.lastLogin)
	}
	if fv.lastVaultTk != "vault-session-token" {
		t.Errorf("OIDC 令牌请求应携带 Vault 会话令牌, got %q", fv.lastVaultTk)
	}
}

// TestVaultProvider_BothLevelsCached 测试两级令牌各自缓存，重复调用不触发网络请求
func TestVaultProvider_BothLevelsCached(t *testing.T) {
	fv := newFakeVault(t)
	store := newSpyStore(t)
	provider := newVaultProviderForTest(t, fv, store)

	for i := 0; i < 3; i++ {
		if _, err := provider.Token(context.Background()); err != nil {
			t.Fatal(err)
		}
	}

	fv.mu.Lock()
	defer fv.mu.Unlock()
	if fv.loginCalls != 1 {
		t.Errorf("AppRole 登录应只发生一次, got %d", fv.loginCalls)
	}
	if fv.tokenCalls != 1 {
		t.Errorf("OIDC 令牌应只领取一次, got %d", fv.tokenCalls)
	}
}

// TestVaultProvider_HalvedTTLs 测试缓存 TTL 分别取 lease_duration/2 和 ttl/2
func TestVaultProvider_HalvedTTLs(t *testing.T) {
	fv := newFakeVault(t)
	store := newSpyStore(t)
	provider := newVaultProviderForTest(t, fv, store)

	if _, err := provider.Token(context.Background()); err != nil {
		t.Fatal(err)
	}

	// lease_duration=3600 → 1800s；ttl=600 → 300s
	assertTTLAbout(t, store, "vault-token", 1800*time.Second)
	assertTTLAbout(t, store, "vault-oidc", 300*time.Second)
}

// TestVaultProvider_ShortLeasesNotCached 测试折半取整后为零的租约不缓存。
// 一秒租约的令牌一旦写入缓存只能以"永不过期"的形态存在。
func TestVaultProvider_ShortLeasesNotCached(t *testing.T) {
	fv := newFakeVault(t)
	fv.mu.Lock()
	fv.leaseDuration = 1 // 1/2 = 0
	fv.tokenTTL = 1
	fv.mu.Unlock()

	store := newSpyStore(t)
	provider := newVaultProviderForTest(t, fv, store)

	for i := 0; i < 2; i++ {
		tok, err := provider.Token(context.Background())
		if err != nil {
			t.Fatalf("短租约令牌仍应可用: %v", err)
		}
		if tok != "vault-issued-jwt" {
			t.Fatalf("tok = %q", tok)
		}
	}

	if _, found := store.Get("vault-token"); found {
		t.Error("折半为零的会话令牌不应写入缓存")
	}
	if _, found := store.Get("vault-oidc"); found {
		t.Error("折半为零的 OIDC 令牌不应写入缓存")
	}

	fv.mu.Lock()
	defer fv.mu.Unlock()
	if fv.loginCalls != 2 || fv.tokenCalls != 2 {
		t.Fatalf("两级都应重新获取, login=%d token=%d", fv.loginCalls, fv.tokenCalls)
	}
}

// TestHalvedTTL 测试租约折半的三种形态：永不过期、正常折半、短到不缓存
func TestHalvedTTL(t *testing.T) {
	if got := halvedTTL(0); got != 0 {
		t.Errorf("租约 0 应映射为永不过期, got %v", got)
	}
	if got := halvedTTL(3600); got != 1800*time.Second {
		t.Errorf("halvedTTL(3600) = %v", got)
	}
	if got := halvedTTL(1); got != cache.NoCache {
		t.Errorf("租约 1 应映射为不缓存, got %v", got)
	}
}

// TestVaultProvider_LoginFailurePropagates 测试登录失败时错误传播且两级均不缓存
func TestVaultProvider_LoginFailurePropagates(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/auth/approle/login", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"errors":["invalid role or secret ID"]}`, http.StatusBadRequest)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	store := newSpyStore(t)
	provider, err := NewVaultProvider(configs.VaultConfig{
		URL:      server.URL,
		RoleID:   "bad",
		SecretID: "bad",
		RoleName: "neckar-app",
	}, cache.NewCoordinator(store))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := provider.Token(context.Background()); err == nil {
		t.Fatal("登录失败时应报错")
	}
	if _, found := store.Get("vault-token"); found {
		t.Error("登录失败后不应缓存 vault-token")
	}
	if _, found := store.Get("vault-oidc"); found {
		t.Error("登录失败后不应缓存 vault-oidc")
	}
}

// TestParseTTLSeconds 测试 ttl 字段的几种解码形态
func TestParseTTLSeconds(t *testing.T) {
	if _, err := parseTTLSeconds(nil); err == nil {
		t.Error("缺失的 ttl 应报错")
	}
	if n, err := parseTTLSeconds(json.Number("600")); err != nil || n != 600 {
		t.Errorf("json.Number: n=%d err=%v", n, err)
	}
	if n, err := parseTTLSeconds(float64(600)); err != nil || n != 600 {
		t.Errorf("float64: n=%d err=%v", n, err)
	}
	if n, err := parseTTLSeconds(int64(600)); err != nil || n != 600 {
		t.Errorf("int64: n=%d err=%v", n, err)
	}
}
