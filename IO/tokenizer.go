package IO

import (
	"fmt"
	"strconv"

	tk "github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/model/wordlevel"
	"github.com/sugarme/tokenizer/pretokenizer"
)

const unkToken = "<unk>"

// PromptTokenizer turns "x y" or "x y =" into the model's [x, y, =] ids.
type PromptTokenizer struct {
	P   int
	tok *tk.Tokenizer
}

// NewPromptTokenizer builds a word-level tokenizer over "0".."p-1" and "=".
func NewPromptTokenizer(p int) *PromptTokenizer {
	vocab := make(map[string]int, p+2)
	for i := 0; i < p; i++ {
		vocab[strconv.Itoa(i)] = i
	}
	vocab["="] = p
	vocab[unkToken] = p + 1

	b := wordlevel.NewWordLevelBuilder()
	b.Vocab(vocab)
	b.UnkToken(unkToken)
	t := tk.NewTokenizer(b.Build())
	t.WithPreTokenizer(pretokenizer.NewWhitespaceSplit())
	return &PromptTokenizer{P: p, tok: t}
}

func (pt *PromptTokenizer) Encode(text string) ([]int, error) {
	enc, err := pt.tok.EncodeSingle(text)
	if err != nil {
		return nil, err
	}
	ids := make([]int, len(enc.Ids))
	for i, v := range enc.Ids {
		ids[i] = int(v)
	}
	if len(ids) == 2 {
		ids = append(ids, pt.P)
	}
	if len(ids) != 3 {
		return nil, fmt.Errorf("IO: prompt %q: want \"x y\" or \"x y =\", got %d tokens", text, len(ids))
	}
	for i, id := range ids[:2] {
		if id >= pt.P {
			return nil, fmt.Errorf("IO: prompt %q: operand %d %q is not a residue mod %d", text, i+1, enc.Tokens[i], pt.P)
		}
	}
	if ids[2] != pt.P {
		return nil, fmt.Errorf("IO: prompt %q: third token must be \"=\"", text)
	}
	return ids, nil
}

// Decode names a model output id.
func (pt *PromptTokenizer) Decode(id int) string {
	switch {
	case id >= 0 && id < pt.P:
		return strconv.Itoa(id)
	case id == pt.P:
		return "="
	default:
		return unkToken
	}
}
