// Package ui 内嵌前端静态资源。
package ui

import (
	"embed"
	"fmt"
)

//go:embed static
var staticFiles embed.FS

// Index 返回首页 HTML。
func Index() ([]byte, error) {
	data, err := staticFiles.ReadFile("static/index.html")
	if err != nil {
		return nil, fmt.Errorf("read embedded index.html failed: %w", err)
	}
	return data, nil
}
