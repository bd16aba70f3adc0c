package service

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/slw-proton/litellm-adpter-dify/internal/model"
)

// PlaceholderPNG 1x1 透明 PNG
const PlaceholderPNG = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR4nGMAAQAABQABDQottAAAAABJRU5ErkJggg=="

const defaultSide = 1024

// extractImages 从工作流文本中取出图片列表
//
// 兼容 {"data":[...]} 以及外层包一层 {"text":"{\"data\":[...]}"} 两种结构
func extractImages(content string) []any {
	var parsed map[string]any
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return nil
	}
	if inner, ok := parsed["text"].(string); ok {
		var innerParsed map[string]any
		if err := json.Unmarshal([]byte(inner), &innerParsed); err == nil {
			if data, ok := innerParsed["data"].([]any); ok {
				return data
			}
		}
	}
	if data, ok := parsed["data"].([]any); ok {
		return data
	}
	return nil
}

// normalizeImages 只保留与返回格式一致的键，丢弃不匹配的条目，最多 limit 条
func normalizeImages(items []any, format model.ImageFormat, limit int) []model.ImageData {
	if limit < 1 {
		limit = 1
	}
	key := "url"
	if format == model.ImageFormatB64JSON {
		key = "b64_json"
	}

	out := make([]model.ImageData, 0, limit)
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		v, _ := obj[key].(string)
		if v == "" {
			continue
		}
		if key == "url" {
			out = append(out, model.ImageData{URL: v})
		} else {
			out = append(out, model.ImageData{B64JSON: v})
		}
		if len(out) >= limit {
			break
		}
	}
	return out
}

// limitImages 第三方返回的结构化结果按同样规则裁剪
func limitImages(images []model.ImageData, format model.ImageFormat, limit int) []model.ImageData {
	items := make([]any, 0, len(images))
	for _, img := range images {
		items = append(items, map[string]any{"url": img.URL, "b64_json": img.B64JSON})
	}
	return normalizeImages(items, format, limit)
}

// parseSize 解析 WxH，格式不对时回退为 1024x1024
func parseSize(size string) (int, int) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(size)), "x")
	if len(parts) != 2 {
		return defaultSide, defaultSide
	}
	w, errW := strconv.Atoi(strings.TrimSpace(parts[0]))
	h, errH := strconv.Atoi(strings.TrimSpace(parts[1]))
	if errW != nil || errH != nil || w <= 0 || h <= 0 {
		return defaultSide, defaultSide
	}
	return w, h
}

// placeholderImages 生成确定性的占位图，同一 prompt 得到同样的地址
func placeholderImages(req model.ImageRequest, baseURL string) []model.ImageData {
	n := req.N
	if n < 1 {
		n = 1
	}
	out := make([]model.ImageData, 0, n)
	if req.ResponseFormat == model.ImageFormatB64JSON {
		for i := 0; i < n; i++ {
			out = append(out, model.ImageData{B64JSON: PlaceholderPNG})
		}
		return out
	}

	w, h := parseSize(req.Size)
	baseURL = strings.TrimRight(baseURL, "/")
	for i := 0; i < n; i++ {
		seed := uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("%s#%d", req.Prompt, i)))
		random := strings.ReplaceAll(seed.String(), "-", "")[:8]
		out = append(out, model.ImageData{URL: fmt.Sprintf("%s/%d/%d?random=%s", baseURL, w, h, random)})
	}
	return out
}
