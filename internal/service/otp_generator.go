package service

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
)

const (
	otpMin = 100000
	otpMax = 999999
)

// CodeGenerator produces one-time codes.
type CodeGenerator interface {
	Generate() (string, error)
}

// RandomCodeGenerator draws 6-digit codes uniformly from [100000, 999999].
type RandomCodeGenerator struct {
	source io.Reader
}

func NewRandomCodeGenerator() *RandomCodeGenerator {
	return &RandomCodeGenerator{source: rand.Reader}
}

func (g *RandomCodeGenerator) Generate() (string, error) {
	n, err := rand.Int(g.source, big.NewInt(otpMax-otpMin+1))
	if err != nil {
		return "", fmt.Errorf("failed to read random source: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+otpMin), nil
}
