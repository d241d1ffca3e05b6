package datasource

import (
	"errors"
	"fmt"
	"strings"

	"github.com/krobus00/bot-service/internal/entity"
)

var ErrParserNotFound = errors.New("parser not found")

type Parser interface {
	Parse(raw []byte) ([]entity.ResponseOfSub, error)
}

type ParserFunc func(raw []byte) ([]entity.ResponseOfSub, error)

func (f ParserFunc) Parse(raw []byte) ([]entity.ResponseOfSub, error) {
	return f(raw)
}

// ParserFactory picks a parser by channel prefix, longest prefix first.
type ParserFactory struct {
	parsers map[string]Parser
}

func NewParserFactory() *ParserFactory {
	return &ParserFactory{parsers: make(map[string]Parser)}
}

func (f *ParserFactory) Register(prefix string, parser Parser) *ParserFactory {
	f.parsers[prefix] = parser
	return f
}

func (f *ParserFactory) Get(channel string) (Parser, error) {
	var (
		match  Parser
		length = -1
	)
	for prefix, parser := range f.parsers {
		if strings.HasPrefix(channel, prefix) && len(prefix) > length {
			match = parser
			length = len(prefix)
		}
	}

	if match == nil {
		return nil, fmt.Errorf("%w: %s", ErrParserNotFound, channel)
	}

	return match, nil
}
