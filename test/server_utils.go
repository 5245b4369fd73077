package test

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// FakePlatform 模拟一个最小化的 Neckar 平台：OIDC realm（发现文档 +
// 密码授权令牌端点）、GraphQL 端点、userinfo 端点和文件上传目标。
// 各端点的调用次数带计数器，便于断言缓存行为。
type FakePlatform struct {
	*httptest.Server

	mu             sync.Mutex
	DiscoveryCalls int
	TokenCalls     int
	GraphQLCalls   int

	lastAuthorization string
	lastCluster       string
	lastSubject       string

	nextFileID int
	uploads    map[string][]byte
	confirmed  map[string]bool
}

// StartFakePlatform 启动假平台。调用方负责通过 Close 停止它。
func StartFakePlatform() *FakePlatform {
	fp := &FakePlatform{
		uploads:   make(map[string][]byte),
		confirmed: make(map[string]bool),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", fp.handleDiscovery)
	mux.HandleFunc("/token", fp.handleToken)
	mux.HandleFunc("/userinfo", fp.handleUserinfo)
	mux.HandleFunc("/graphql", fp.handleGraphQL)
	mux.HandleFunc("/blob/", fp.handleBlob)

	fp.Server = httptest.NewServer(mux)
	return fp
}

func (fp *FakePlatform) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	fp.mu.Lock()
	fp.DiscoveryCalls++
	fp.mu.Unlock()

	json.NewEncoder(w).Encode(map[string]string{
		"issuer":            fp.URL,
		"token_endpoint":    fp.URL + "/token",
		"userinfo_endpoint": fp.URL + "/userinfo",
	})
}

func (fp *FakePlatform) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	if r.PostForm.Get("grant_type") != "password" || r.PostForm.Get("username") == "" {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
		return
	}

	fp.mu.Lock()
	fp.TokenCalls++
	n := fp.TokenCalls
	fp.mu.Unlock()

	json.NewEncoder(w).Encode(map[string]any{
		"access_token": fmt.Sprintf("access-token-%d", n),
		"expires_in":   3600,
	})
}

// requireBearer 校验 Authorization 头部并记录身份头部
func (fp *FakePlatform) requireBearer(w http.ResponseWriter, r *http.Request) bool {
	authz := r.Header.Get("Authorization")
	fp.mu.Lock()
	fp.lastAuthorization = authz
	fp.lastCluster = r.Header.Get("X-Neckar-Cluster")
	fp.lastSubject = r.Header.Get("X-Neckar-Subject")
	fp.mu.Unlock()

	if !strings.HasPrefix(authz, "Bearer access-token-") {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return false
	}
	return true
}

func (fp *FakePlatform) handleUserinfo(w http.ResponseWriter, r *http.Request) {
	if !fp.requireBearer(w, r) {
		return
	}
	json.NewEncoder(w).Encode(map[string]any{
		"sub":   "alice",
		"email": "alice@example.com",
	})
}

func (fp *FakePlatform) handleGraphQL(w http.ResponseWriter, r *http.Request) {
	if !fp.requireBearer(w, r) {
		return
	}

	fp.mu.Lock()
	fp.GraphQLCalls++
	fp.mu.Unlock()

	var req struct {
		Query     string         `json:"query"`
		Variables map[string]any `json:"variables"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad body", http.StatusBadRequest)
		return
	}

	// 按查询内容粗略分发，对一个假平台来说足够了
	switch {
	case strings.Contains(req.Query, "createFileUpload"):
		fp.mu.Lock()
		fp.nextFileID++
		id := fmt.Sprintf("file-%d", fp.nextFileID)
		fp.mu.Unlock()
		writeData(w, map[string]any{
			"createFileUpload": map[string]string{
				"id":  id,
				"url": fp.URL + "/blob/" + id,
			},
		})

	case strings.Contains(req.Query, "confirmFileUpload"):
		id, _ := req.Variables["id"].(string)
		fp.mu.Lock()
		_, exists := fp.uploads[id]
		if exists {
			fp.confirmed[id] = true
		}
		fp.mu.Unlock()
		if !exists {
			writeErrors(w, "no bytes uploaded for "+id)
			return
		}
		writeData(w, map[string]any{
			"confirmFileUpload": map[string]string{"id": id},
		})

	case strings.Contains(req.Query, "ping"):
		writeData(w, map[string]any{"ping": "pong"})

	default:
		writeErrors(w, "unknown operation")
	}
}

func (fp *FakePlatform) handleBlob(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/blob/")
	content, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read failed", http.StatusInternalServerError)
		return
	}

	fp.mu.Lock()
	fp.uploads[id] = content
	fp.mu.Unlock()
	w.WriteHeader(http.StatusCreated)
}

// Upload 返回指定文件的内容和确认状态
func (fp *FakePlatform) Upload(id string) (content []byte, confirmed bool) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	return fp.uploads[id], fp.confirmed[id]
}

// Counts 返回各端点的调用次数
func (fp *FakePlatform) Counts() (discovery, token, graphql int) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	return fp.DiscoveryCalls, fp.TokenCalls, fp.GraphQLCalls
}

// Identity 返回最后一次请求携带的身份头部
func (fp *FakePlatform) Identity() (cluster, subject string) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	return fp.lastCluster, fp.lastSubject
}

func writeData(w http.ResponseWriter, data map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"data": data})
}

func writeErrors(w http.ResponseWriter, messages ...string) {
	errs := make([]map[string]string, len(messages))
	for i, m := range messages {
		errs[i] = map[string]string{"message": m}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"errors": errs})
}
