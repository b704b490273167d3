package chunk

import (
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// LanguageRegistry manages supported languages and their chunkable node sets.
type LanguageRegistry struct {
	mu          sync.RWMutex
	configs     map[string]*LanguageConfig
	extToLang   map[string]string
	tsLanguages map[string]*sitter.Language
}

// NewLanguageRegistry creates a registry with the spec's closed language set.
func NewLanguageRegistry() *LanguageRegistry {
	r := &LanguageRegistry{
		configs:     make(map[string]*LanguageConfig),
		extToLang:   make(map[string]string),
		tsLanguages: make(map[string]*sitter.Language),
	}

	r.registerRust()
	r.registerPython()
	r.registerTypeScript()
	r.registerJavaScript()

	return r
}

// GetByExtension returns the language configuration for a file extension.
func (r *LanguageRegistry) GetByExtension(ext string) (*LanguageConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	langName, ok := r.extToLang[ext]
	if !ok {
		return nil, false
	}
	config, ok := r.configs[langName]
	return config, ok
}

// GetByName returns the language configuration by name.
func (r *LanguageRegistry) GetByName(name string) (*LanguageConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	config, ok := r.configs[name]
	return config, ok
}

// GetTreeSitterLanguage returns the tree-sitter grammar for a language name.
func (r *LanguageRegistry) GetTreeSitterLanguage(name string) (*sitter.Language, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lang, ok := r.tsLanguages[name]
	return lang, ok
}

// SupportedExtensions returns all registered file extensions.
func (r *LanguageRegistry) SupportedExtensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exts := make([]string, 0, len(r.extToLang))
	for ext := range r.extToLang {
		exts = append(exts, ext)
	}
	return exts
}

func (r *LanguageRegistry) registerLanguage(config *LanguageConfig, tsLang *sitter.Language) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.configs[config.Name] = config
	r.tsLanguages[config.Name] = tsLang
	for _, ext := range config.Extensions {
		r.extToLang[ext] = config.Name
	}
}

// registerRust registers the Rust chunkable node set from spec §4.1:
// function_item, impl_item, struct_item, enum_item, trait_item, and
// mod_item when non-empty.
func (r *LanguageRegistry) registerRust() {
	config := &LanguageConfig{
		Name:          "rust",
		Extensions:    []string{".rs"},
		FunctionTypes: []string{"function_item"},
		ImplTypes:     []string{"impl_item"},
		ClassTypes:    []string{"struct_item", "enum_item"},
		TraitTypes:    []string{"trait_item"},
		ModuleTypes:   []string{"mod_item"},
		KindOf: map[string]Kind{
			"function_item": KindFunction,
			"impl_item":     KindImpl,
			"struct_item":   KindStruct,
			"enum_item":     KindEnum,
			"trait_item":    KindTrait,
			"mod_item":      KindModule,
		},
	}
	r.registerLanguage(config, rust.GetLanguage())
}

// registerPython registers: function_definition, class_definition,
// decorated_definition (spec §4.1).
func (r *LanguageRegistry) registerPython() {
	config := &LanguageConfig{
		Name:          "python",
		Extensions:    []string{".py"},
		FunctionTypes: []string{"function_definition", "decorated_definition"},
		ClassTypes:    []string{"class_definition"},
		KindOf: map[string]Kind{
			"function_definition":  KindFunction,
			"decorated_definition": KindFunction,
			"class_definition":     KindClass,
		},
	}
	r.registerLanguage(config, python.GetLanguage())
}

// registerTypeScript registers: function_declaration, method_definition,
// class_declaration, interface_declaration, type_alias_declaration,
// arrow_function bound to a named variable (spec §4.1). The arrow-function
// case is not in KindOf: findSymbolNodes matches a variable_declarator
// whose value is an arrow_function. TSX shares the same node-type set over
// the TSX grammar.
func (r *LanguageRegistry) registerTypeScript() {
	tsConfig := &LanguageConfig{
		Name:           "typescript",
		Extensions:     []string{".ts"},
		FunctionTypes:  []string{"function_declaration"},
		MethodTypes:    []string{"method_definition"},
		ClassTypes:     []string{"class_declaration"},
		InterfaceTypes: []string{"interface_declaration"},
		TypeDefTypes:   []string{"type_alias_declaration"},
		KindOf: map[string]Kind{
			"function_declaration":  KindFunction,
			"method_definition":     KindMethod,
			"class_declaration":     KindClass,
			"interface_declaration": KindInterface,
			"type_alias_declaration": KindType,
		},
	}
	r.registerLanguage(tsConfig, typescript.GetLanguage())

	tsxConfig := &LanguageConfig{
		Name:           "tsx",
		Extensions:     []string{".tsx"},
		FunctionTypes:  tsConfig.FunctionTypes,
		MethodTypes:    tsConfig.MethodTypes,
		ClassTypes:     tsConfig.ClassTypes,
		InterfaceTypes: tsConfig.InterfaceTypes,
		TypeDefTypes:   tsConfig.TypeDefTypes,
		KindOf:         tsConfig.KindOf,
	}
	r.registerLanguage(tsxConfig, tsx.GetLanguage())
}

// registerJavaScript registers the same chunkable set as TypeScript minus
// interfaces/type aliases, which JS's grammar has no nodes for.
func (r *LanguageRegistry) registerJavaScript() {
	jsConfig := &LanguageConfig{
		Name:          "javascript",
		Extensions:    []string{".js", ".mjs"},
		FunctionTypes: []string{"function_declaration"},
		MethodTypes:   []string{"method_definition"},
		ClassTypes:    []string{"class_declaration"},
		KindOf: map[string]Kind{
			"function_declaration": KindFunction,
			"method_definition":    KindMethod,
			"class_declaration":    KindClass,
		},
	}
	r.registerLanguage(jsConfig, javascript.GetLanguage())

	jsxConfig := &LanguageConfig{
		Name:          "jsx",
		Extensions:    []string{".jsx"},
		FunctionTypes: jsConfig.FunctionTypes,
		MethodTypes:   jsConfig.MethodTypes,
		ClassTypes:    jsConfig.ClassTypes,
		KindOf:        jsConfig.KindOf,
	}
	r.registerLanguage(jsxConfig, javascript.GetLanguage())
}

var defaultRegistry = NewLanguageRegistry()

// DefaultRegistry returns the process-wide language registry.
func DefaultRegistry() *LanguageRegistry {
	return defaultRegistry
}
