package adapter

import (
	"math/rand"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slw-proton/litellm-adpter-dify/internal/model"
)

func collect(s *ChunkStream) []model.StreamChunk {
	var out []model.StreamChunk
	for c := range s.All() {
		out = append(out, c)
	}
	return out
}

func join(chunks []model.StreamChunk) string {
	var sb strings.Builder
	for _, c := range chunks {
		sb.WriteString(c.Content)
	}
	return sb.String()
}

func TestChunkStreamWords(t *testing.T) {
	chunks := collect(NewChunkStream("hello big  world\n", 16))

	got := make([]string, 0, len(chunks))
	for _, c := range chunks {
		got = append(got, c.Content)
	}
	assert.Equal(t, []string{"hello ", "big  ", "world\n", ""}, got)

	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
	}
	assert.Equal(t, "stop", chunks[3].FinishReason)
	assert.Empty(t, chunks[1].FinishReason)
}

func TestChunkStreamLongRunsSplitByRunes(t *testing.T) {
	content := "这是一个没有空格的很长的中文句子用于测试"
	chunks := collect(NewChunkStream(content, 4))

	assert.Equal(t, content, join(chunks))
	for _, c := range chunks[:len(chunks)-1] {
		assert.LessOrEqual(t, utf8.RuneCountInString(c.Content), 4)
		assert.NotEmpty(t, c.Content)
	}
}

func TestChunkStreamEmptyContent(t *testing.T) {
	chunks := collect(NewChunkStream("", 16))

	require.Len(t, chunks, 1)
	assert.Equal(t, "stop", chunks[0].FinishReason)
	assert.Equal(t, model.RoleAssistant, chunks[0].Role)
}

func TestChunkStreamConsumedOnce(t *testing.T) {
	s := NewChunkStream("a b", 16)

	first, ok := s.Next()
	require.True(t, ok)
	assert.Equal(t, "a ", first.Content)

	rest := collect(s)
	assert.Equal(t, "b", join(rest))

	_, ok = s.Next()
	assert.False(t, ok)
	assert.Empty(t, collect(s))
}

func TestChunkStreamEarlyBreakKeepsPosition(t *testing.T) {
	s := NewChunkStream("one two three", 16)
	for range s.All() {
		break
	}
	assert.Equal(t, "two three", join(collect(s)))
}

func TestChunkStreamConcatenationLossless(t *testing.T) {
	alphabet := []rune("ab \t\n你好😀,.-")
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 200; i++ {
		n := rng.Intn(80)
		runes := make([]rune, n)
		for j := range runes {
			runes[j] = alphabet[rng.Intn(len(alphabet))]
		}
		content := string(runes)
		maxRunes := 1 + rng.Intn(8)

		chunks := collect(NewChunkStream(content, maxRunes))

		require.Equal(t, content, join(chunks), "content %q max %d", content, maxRunes)
		last := chunks[len(chunks)-1]
		assert.Equal(t, "stop", last.FinishReason)
		for _, c := range chunks[:len(chunks)-1] {
			assert.NotEmpty(t, c.Content)
			assert.Empty(t, c.FinishReason)
		}
	}
}
