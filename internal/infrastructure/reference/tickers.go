package reference

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileSource reads the static list of exchange-listed tickers from a JSON
// file of the form {"symbols": ["AAA", "BBB", ...]}.
type FileSource struct {
	path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (s *FileSource) ListedSymbols(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Clean(s.path))
	if err != nil {
		return nil, fmt.Errorf("read tickers file: %w", err)
	}
	var payload struct {
		Symbols []string `json:"symbols"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("parse tickers file: %w", err)
	}
	symbols := make([]string, 0, len(payload.Symbols))
	for _, symbol := range payload.Symbols {
		symbol = strings.TrimSpace(symbol)
		if symbol != "" {
			symbols = append(symbols, symbol)
		}
	}
	return symbols, nil
}
