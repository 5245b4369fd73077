package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"neckar"
	"neckar/configs"
)

func usage() {
	fmt.Fprintf(os.Stderr, `用法:
  neckar userinfo                 打印当前用户的 OIDC 声明
  neckar query <graphql>          执行一个 GraphQL 查询并打印 data
  neckar upload <file>            上传一个文件并打印其 ID
`)
	os.Exit(2)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	// 加载配置
	config, err := configs.LoadConfig()
	if err != nil {
		log.Fatalf("无法加载配置: %v", err)
	}

	// 创建客户端
	client, err := neckar.New(config)
	if err != nil {
		log.Fatalf("无法创建客户端: %v", err)
	}
	defer client.Close()

	ctx := context.Background()

	switch os.Args[1] {
	case "userinfo":
		claims, err := client.Userinfo(ctx)
		if err != nil {
			log.Fatalf("获取 userinfo 失败: %v", err)
		}
		printJSON(claims)

	case "query":
		if len(os.Args) < 3 {
			usage()
		}
		var data map[string]any
		if err := client.Query(ctx, os.Args[2], nil, &data); err != nil {
			log.Fatalf("查询失败: %v", err)
		}
		printJSON(data)

	case "upload":
		if len(os.Args) < 3 {
			usage()
		}
		content, err := os.ReadFile(os.Args[2])
		if err != nil {
			log.Fatalf("读取文件失败: %v", err)
		}
		id, err := client.UploadFile(ctx, filepath.Base(os.Args[2]), content)
		if err != nil {
			log.Fatalf("上传失败: %v", err)
		}
		fmt.Println(id)

	default:
		usage()
	}
}

func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatalf("编码输出失败: %v", err)
	}
	fmt.Println(string(out))
}
