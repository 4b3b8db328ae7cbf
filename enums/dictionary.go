package enums

import (
	"sort"
	"strconv"
	"sync"
)

var (
	defaultDictionary = NewDictionary()
)

// Default returns the process-wide dictionary.
func Default() *Dictionary {
	return defaultDictionary
}

// Dictionary is safe for concurrent use.
type Dictionary struct {
	mutex       sync.RWMutex
	definitions map[string]*Definition
}

func NewDictionary() *Dictionary {
	return &Dictionary{
		definitions: map[string]*Definition{},
	}
}

// ParseAndRegister parses the declarations and registers every parsed
// definition.  Nothing is registered when the input is malformed.
func (dict *Dictionary) ParseAndRegister(declarations string) error {
	defs, err := ParseDeclarations(declarations)
	if err != nil {
		return err
	}

	dict.mutex.Lock()
	defer dict.mutex.Unlock()

	for _, def := range defs {
		dict.definitions[def.Name] = def
	}
	return nil
}

// Register adds the definition, replacing any definition with the same name.
func (dict *Dictionary) Register(def *Definition) {
	dict.mutex.Lock()
	defer dict.mutex.Unlock()

	dict.definitions[def.Name] = def
}

func (dict *Dictionary) Lookup(name string) (*Definition, bool) {
	dict.mutex.RLock()
	defer dict.mutex.RUnlock()

	def, ok := dict.definitions[name]
	return def, ok
}

func (dict *Dictionary) Len() int {
	dict.mutex.RLock()
	defer dict.mutex.RUnlock()

	return len(dict.definitions)
}

func (dict *Dictionary) Names() []string {
	dict.mutex.RLock()
	defer dict.mutex.RUnlock()

	names := make([]string, 0, len(dict.definitions))
	for name := range dict.definitions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns every definition, ordered by name.
func (dict *Dictionary) Definitions() []*Definition {
	names := dict.Names()

	dict.mutex.RLock()
	defer dict.mutex.RUnlock()

	result := make([]*Definition, 0, len(names))
	for _, name := range names {
		def, ok := dict.definitions[name]
		if ok {
			result = append(result, def)
		}
	}
	return result
}

// Format renders value using the named definition.  Unknown enums render
// the value in decimal.
func (dict *Dictionary) Format(name string, value int64) string {
	def, ok := dict.Lookup(name)
	if !ok {
		return strconv.FormatInt(value, 10)
	}
	return def.Format(value)
}
