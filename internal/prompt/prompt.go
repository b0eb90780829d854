// Package prompt loads and routes the extraction prompts. A base prompt is
// layered with a per-concessionaria specialization selected through
// mapper.json, which supports aliases and a "*" UF wildcard. The parsed
// mapper is cached and invalidated by file modification time.
package prompt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"contaluz/internal/normalize"
)

const mapperSchema = `{
  "type": "object",
  "properties": {
    "prompts": {
      "type": "object",
      "additionalProperties": {
        "oneOf": [
          {"type": "string"},
          {"type": "object", "additionalProperties": {"type": "string"}}
        ]
      }
    },
    "aliases": {
      "type": "object",
      "additionalProperties": {"type": "string"}
    }
  },
  "additionalProperties": false
}`

// Mapper routes a normalized concessionaria/UF pair to a specialization
// prompt file.
type Mapper struct {
	Prompts map[string]any    `json:"prompts"`
	Aliases map[string]string `json:"aliases"`
}

// Loader reads prompt assets from a directory. Safe for concurrent use.
type Loader struct {
	dir string

	mu          sync.Mutex
	mapper      *Mapper
	mapperMtime int64

	schema *jsonschema.Schema
}

// NewLoader creates a Loader rooted at dir. The mapper schema is compiled
// once up front.
func NewLoader(dir string) (*Loader, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("mapper.schema.json", bytes.NewReader([]byte(mapperSchema))); err != nil {
		return nil, fmt.Errorf("adding mapper schema: %w", err)
	}
	schema, err := compiler.Compile("mapper.schema.json")
	if err != nil {
		return nil, fmt.Errorf("compiling mapper schema: %w", err)
	}
	return &Loader{dir: dir, schema: schema}, nil
}

// Read returns the full-image prompt: base.md plus the specialization the
// mapper selects for the concessionaria/UF pair, if any.
func (l *Loader) Read(concessionaria, uf string) (string, error) {
	base, err := l.readFile("base.md")
	if err != nil {
		return "", err
	}
	mapper, err := l.loadMapper()
	if err != nil {
		return "", err
	}

	ckey := normalize.Key(concessionaria)
	if aliased, ok := mapper.Aliases[ckey]; ok && strings.TrimSpace(aliased) != "" {
		ckey = normalize.Key(aliased)
	}
	ufKey := normalize.Key(uf)

	specFile := ""
	switch byUF := mapper.Prompts[ckey].(type) {
	case map[string]any:
		if v, ok := byUF[ufKey].(string); ok && strings.TrimSpace(v) != "" {
			specFile = strings.TrimSpace(v)
		} else if v, ok := byUF["*"].(string); ok && strings.TrimSpace(v) != "" {
			specFile = strings.TrimSpace(v)
		}
	case string:
		if strings.TrimSpace(byUF) != "" {
			specFile = strings.TrimSpace(byUF)
		}
	}

	if specFile == "" {
		return base, nil
	}
	spec, err := l.readFile(specFile)
	if err != nil {
		return "", fmt.Errorf("mapped prompt missing (concessionaria=%s, uf=%s): %w", ckey, ufKey, err)
	}
	return base + "\n\n" + spec, nil
}

// ReadCustomerAddress returns the address-crop prompt.
func (l *Loader) ReadCustomerAddress() (string, error) {
	return l.readFile("customer_address.md")
}

// ReadConsumption returns the consumption-table crop prompt.
func (l *Loader) ReadConsumption() (string, error) {
	return l.readFile("consumption.md")
}

// ReadRetryCEP returns the specialized CEP retry prompt used by the
// fallback pipeline.
func (l *Loader) ReadRetryCEP() (string, error) {
	return l.readFile("retry_cep.md")
}

func (l *Loader) readFile(name string) (string, error) {
	raw, err := os.ReadFile(filepath.Join(l.dir, name))
	if err != nil {
		return "", fmt.Errorf("reading prompt %s: %w", name, err)
	}
	return strings.TrimSpace(string(raw)), nil
}

// loadMapper parses mapper.json, validating it against the embedded schema.
// The result is cached until the file's mtime changes; a missing mapper is
// an empty mapper, not an error.
func (l *Loader) loadMapper() (*Mapper, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	path := filepath.Join(l.dir, "mapper.json")
	st, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Mapper{}, nil
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	mtime := st.ModTime().UnixNano()
	if l.mapper != nil && l.mapperMtime == mtime {
		return l.mapper, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := l.schema.Validate(generic); err != nil {
		return nil, fmt.Errorf("invalid mapper %s: %w", path, err)
	}
	var mapper Mapper
	if err := json.Unmarshal(raw, &mapper); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if mapper.Prompts == nil {
		mapper.Prompts = map[string]any{}
	}
	if mapper.Aliases == nil {
		mapper.Aliases = map[string]string{}
	}

	l.mapper = &mapper
	l.mapperMtime = mtime
	return l.mapper, nil
}
