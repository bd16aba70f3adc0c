package adapter

import (
	"iter"
	"unicode"
	"unicode/utf8"

	"github.com/slw-proton/litellm-adpter-dify/internal/model"
)

const DefaultChunkRunes = 16

// ChunkStream 把完整回答切成有序分片，惰性生成，只能消费一次
//
// 每个分片是一个单词加上其后的空白；超过 maxRunes 的连续非空白按字符数切开。
// 最后一个分片内容为空，FinishReason 为 stop
type ChunkStream struct {
	content  string
	pos      int
	index    int
	maxRunes int
	done     bool
}

func NewChunkStream(content string, maxRunes int) *ChunkStream {
	if maxRunes <= 0 {
		maxRunes = DefaultChunkRunes
	}
	return &ChunkStream{content: content, maxRunes: maxRunes}
}

// Next 返回下一个分片；结束后始终返回 false
func (s *ChunkStream) Next() (model.StreamChunk, bool) {
	if s.done {
		return model.StreamChunk{}, false
	}

	var chunk model.StreamChunk
	if s.pos >= len(s.content) {
		s.done = true
		chunk = model.StreamChunk{FinishReason: model.FinishReasonStop}
	} else {
		piece := nextPiece(s.content[s.pos:], s.maxRunes)
		s.pos += len(piece)
		chunk = model.StreamChunk{Content: piece}
	}

	chunk.Index = s.index
	if s.index == 0 {
		chunk.Role = model.RoleAssistant
	}
	s.index++
	return chunk, true
}

// All range-over-func 形式的遍历，与 Next 共享游标
func (s *ChunkStream) All() iter.Seq[model.StreamChunk] {
	return func(yield func(model.StreamChunk) bool) {
		for {
			c, ok := s.Next()
			if !ok || !yield(c) {
				return
			}
		}
	}
}

// nextPiece s 非空时返回非空前缀
func nextPiece(s string, maxRunes int) string {
	i, runes := 0, 0
	for i < len(s) {
		r, size := utf8.DecodeRuneInString(s[i:])
		if unicode.IsSpace(r) {
			break
		}
		if runes == maxRunes {
			return s[:i]
		}
		i += size
		runes++
	}
	for i < len(s) {
		r, size := utf8.DecodeRuneInString(s[i:])
		if !unicode.IsSpace(r) {
			break
		}
		i += size
	}
	return s[:i]
}
