package symbols

import (
	"bufio"
	"os"
	"strings"

	"tradesim/src/datamodels"
	"tradesim/src/utils/errors"
)

// Provider serves the configured symbol list. The file is read once at
// construction; every stage shares the same instance for the life of the
// process.
type Provider struct {
	list  []string
	index map[string]int
}

// NewProviderFromConfig loads a newline-delimited ticker symbol file.
func NewProviderFromConfig(config *datamodels.SymbolsConfig) (*Provider, error) {
	file, err := os.Open(config.FilePath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open symbols file")
	}
	defer file.Close()

	p := &Provider{index: make(map[string]int)}
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		symbol := strings.TrimSpace(scanner.Text())
		if symbol == "" {
			continue
		}
		p.index[symbol] = len(p.list)
		p.list = append(p.list, symbol)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read symbols file")
	}
	if len(p.list) == 0 {
		return nil, errors.New("symbols file is empty")
	}
	return p, nil
}

// List returns a copy of the symbol list in file order.
func (p *Provider) List() []string {
	out := make([]string, len(p.list))
	copy(out, p.list)
	return out
}

// Index returns the stable position of a symbol in the configured list, or
// -1 for unknown symbols. The position feeds the noise function's second
// coordinate.
func (p *Provider) Index(symbol string) int {
	i, ok := p.index[symbol]
	if !ok {
		return -1
	}
	return i
}

func (p *Provider) Len() int {
	return len(p.list)
}
