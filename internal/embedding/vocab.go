package embedding

import (
	"bufio"
	"fmt"
	"os"
)

// vocab maps WordPiece tokens to ids; the id of a token is its zero-based
// line number in vocab.txt.
type vocab struct {
	ids map[string]int64

	unk int64
	cls int64
	sep int64
}

func loadVocab(path string) (*vocab, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vocab: %w", err)
	}
	defer f.Close()

	v := &vocab{ids: make(map[string]int64, 32000)}
	var next int64
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		v.ids[sc.Text()] = next
		next++
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read vocab: %w", err)
	}
	if next == 0 {
		return nil, fmt.Errorf("vocab %s is empty", path)
	}

	for token, dst := range map[string]*int64{"[UNK]": &v.unk, "[CLS]": &v.cls, "[SEP]": &v.sep} {
		id, ok := v.ids[token]
		if !ok {
			return nil, fmt.Errorf("vocab %s has no %s token", path, token)
		}
		*dst = id
	}
	return v, nil
}

func (v *vocab) id(token string) int64 {
	if id, ok := v.ids[token]; ok {
		return id
	}
	return v.unk
}

func (v *vocab) has(token string) bool {
	_, ok := v.ids[token]
	return ok
}

func (v *vocab) size() int { return len(v.ids) }
