package embedding

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTokens = []string{
	"[PAD]", "[UNK]", "[CLS]", "[SEP]",
	"host", "rest", "##art", "##ed", "infra", "rds", "/", "cafe", "mumbai", "中",
}

func writeVocab(t *testing.T, tokens []string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vocab.txt")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(tokens, "\n")+"\n"), 0o644))
	return path
}

func testTokenizer(t *testing.T, maxLen int) *tokenizer {
	t.Helper()
	v, err := loadVocab(writeVocab(t, testTokens))
	require.NoError(t, err)
	return newTokenizer(v, maxLen)
}

func TestLoadVocab(t *testing.T) {
	v, err := loadVocab(writeVocab(t, testTokens))
	require.NoError(t, err)

	assert.Equal(t, len(testTokens), v.size())
	assert.Equal(t, int64(1), v.unk)
	assert.Equal(t, int64(2), v.cls)
	assert.Equal(t, int64(3), v.sep)
	assert.Equal(t, int64(4), v.id("host"))
	assert.Equal(t, v.unk, v.id("nope"))
}

func TestLoadVocab_Errors(t *testing.T) {
	_, err := loadVocab(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)

	_, err = loadVocab(writeVocab(t, []string{"[PAD]", "[UNK]", "[CLS]"}))
	assert.ErrorContains(t, err, "[SEP]")

	empty := filepath.Join(t.TempDir(), "empty.txt")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	_, err = loadVocab(empty)
	assert.ErrorContains(t, err, "empty")
}

func TestSplitWords(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"Host restarted", []string{"host", "restarted"}},
		{"Infra/RDS", []string{"infra", "/", "rds"}},
		{"Café\tMUMBAI\n", []string{"cafe", "mumbai"}},
		{"a中b", []string{"a", "中", "b"}},
		{"x\x00y", []string{"xy"}},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, splitWords(tt.in)); diff != "" {
			t.Errorf("splitWords(%q) mismatch (-want +got):\n%s", tt.in, diff)
		}
	}
}

func TestEncode(t *testing.T) {
	tok := testTokenizer(t, DefaultMaxSeqLen)

	ids, mask := tok.encode("Host restarted Infra/RDS xyz")

	// [CLS] host rest ##art ##ed infra / rds [UNK] [SEP]
	want := []int64{2, 4, 5, 6, 7, 8, 10, 9, 1, 3}
	if diff := cmp.Diff(want, ids); diff != "" {
		t.Errorf("ids mismatch (-want +got):\n%s", diff)
	}
	assert.Len(t, mask, len(ids))
	for _, m := range mask {
		assert.Equal(t, int64(1), m)
	}
}

func TestEncode_Truncates(t *testing.T) {
	tok := testTokenizer(t, 5)

	ids, _ := tok.encode("host host host host host host")
	assert.Equal(t, []int64{2, 4, 4, 4, 3}, ids)
}

func TestEncode_Empty(t *testing.T) {
	tok := testTokenizer(t, DefaultMaxSeqLen)

	ids, mask := tok.encode("")
	assert.Equal(t, []int64{2, 3}, ids)
	assert.Equal(t, []int64{1, 1}, mask)
}

func TestEncode_Deterministic(t *testing.T) {
	tok := testTokenizer(t, DefaultMaxSeqLen)
	a, _ := tok.encode("Host restarted MUMBAI")
	b, _ := tok.encode("Host restarted MUMBAI")
	assert.Equal(t, a, b)
}

func TestSplitWord_LongWordIsUnknown(t *testing.T) {
	tok := testTokenizer(t, DefaultMaxSeqLen)
	assert.Equal(t, []string{"[UNK]"}, tok.splitWord(strings.Repeat("a", maxWordRunes+1)))
}
