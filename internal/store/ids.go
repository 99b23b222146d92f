package store

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/Manonp59/prbmg/pkg/models"
)

const idAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// NewPredictionID returns a random opaque identifier of
// models.PredictionIDLength characters drawn from [A-Za-z0-9].
func NewPredictionID() (string, error) {
	max := big.NewInt(int64(len(idAlphabet)))
	b := make([]byte, models.PredictionIDLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate prediction id: %w", err)
		}
		b[i] = idAlphabet[n.Int64()]
	}
	return string(b), nil
}
