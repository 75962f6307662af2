// Copyright 2026 TrustLabs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

package profile

// SeedProfiles returns the built-in profiles shipped with the binary.
// Generated profiles replace these per codebase; on any profiling failure
// the seed stays active.
func SeedProfiles() []*LanguageProfile {
	return []*LanguageProfile{
		{
			Language:       "python",
			FileExtensions: []string{".py"},
			FunctionDefPatterns: []string{
				`(?m)^(?P<indent>[ \t]*)(?:async\s+)?def\s+(?P<name>\w+)\s*\(`,
			},
			ClassDefPatterns: []string{
				`(?m)^(?P<indent>[ \t]*)class\s+(?P<name>\w+)`,
			},
			SkipTokens:        []string{"def", "class", "import", "from", "return", "self", "print", "len", "range", "str", "int"},
			SingleLineComment: "#",
			StringDelimiters:  []string{`"""`, `'''`, `"`, `'`},
			LLMCallPrompt:     "\nPython notes: decorators are not calls to project functions unless the decorator name itself is a known function. Method calls through self (self.foo()) count as calls to foo.",
			Seeded:            true,
		},
		{
			Language:       "go",
			FileExtensions: []string{".go"},
			FunctionDefPatterns: []string{
				`(?m)^func\s+(?:\(\w+\s+\*?(?P<class_prefix>\w+)\)\s+)?(?P<name>\w+)\s*\(`,
			},
			ClassDefPatterns: []string{
				`(?m)^type\s+(?P<name>\w+)\s+struct\b`,
			},
			SkipTokens:            []string{"func", "type", "return", "make", "len", "cap", "append", "new", "panic", "defer", "go", "range", "if", "for", "switch"},
			SingleLineComment:     "//",
			MultiLineCommentOpen:  "/*",
			MultiLineCommentClose: "*/",
			StringDelimiters:      []string{"`", `"`},
			LLMCallPrompt:         "\nGo notes: method calls through a receiver (s.Process()) count as calls to Process. Deferred and goroutine-launched calls (defer f(), go f()) are calls.",
			Seeded:                true,
		},
		{
			Language:       "javascript",
			FileExtensions: []string{".js", ".jsx"},
			FunctionDefPatterns: []string{
				`(?m)(?:async\s+)?function\s+(?P<name>\w+)\s*\(`,
				`(?m)(?:const|let|var)\s+(?P<name>\w+)\s*=\s*(?:async\s+)?\(`,
				`(?m)(?:const|let|var)\s+(?P<name>\w+)\s*=\s*(?:async\s+)?function`,
			},
			ClassDefPatterns: []string{
				`(?m)class\s+(?P<name>\w+)`,
			},
			SkipTokens:            []string{"function", "class", "return", "console", "require", "import", "export", "typeof", "new", "if", "for", "while"},
			SingleLineComment:     "//",
			MultiLineCommentOpen:  "/*",
			MultiLineCommentClose: "*/",
			StringDelimiters:      []string{"`", `"`, `'`},
			Seeded:                true,
		},
		{
			Language:       "typescript",
			FileExtensions: []string{".ts", ".tsx"},
			FunctionDefPatterns: []string{
				`(?m)(?:async\s+)?function\s+(?P<name>\w+)\s*[\(<]`,
				`(?m)(?:export\s+)?(?:const|let|var)\s+(?P<name>\w+)\s*=\s*(?:async\s+)?\(`,
			},
			ClassDefPatterns: []string{
				`(?m)(?:export\s+)?class\s+(?P<name>\w+)`,
				`(?m)(?:export\s+)?interface\s+(?P<name>\w+)`,
			},
			SkipTokens:            []string{"function", "class", "interface", "return", "console", "import", "export", "typeof", "new", "type", "enum"},
			SingleLineComment:     "//",
			MultiLineCommentOpen:  "/*",
			MultiLineCommentClose: "*/",
			StringDelimiters:      []string{"`", `"`, `'`},
			Seeded:                true,
		},
		{
			Language:       "java",
			FileExtensions: []string{".java"},
			FunctionDefPatterns: []string{
				`(?m)(?:(?:public|private|protected|static|final|abstract|synchronized)\s+)+[\w<>\[\],\s]+\s+(?P<name>\w+)\s*\([^)]*\)\s*(?:throws\s+[\w,\s]+)?\s*\{`,
			},
			ClassDefPatterns: []string{
				`(?m)(?:public\s+|final\s+|abstract\s+)*class\s+(?P<name>\w+)`,
			},
			SkipTokens:            []string{"public", "private", "protected", "static", "class", "return", "new", "if", "for", "while", "switch", "catch"},
			SingleLineComment:     "//",
			MultiLineCommentOpen:  "/*",
			MultiLineCommentClose: "*/",
			StringDelimiters:      []string{`"`},
			Seeded:                true,
		},
		{
			Language:       "csharp",
			FileExtensions: []string{".cs"},
			FunctionDefPatterns: []string{
				`(?m)(?:(?:public|private|protected|internal|static|virtual|override|abstract|async)\s+)+[\w<>\[\]]+\s+(?P<name>\w+)\s*\(`,
			},
			ClassDefPatterns: []string{
				`(?m)(?:public\s+|internal\s+|static\s+|sealed\s+)*class\s+(?P<name>\w+)`,
			},
			SkipTokens:            []string{"public", "private", "protected", "internal", "static", "class", "return", "new", "var", "using", "if", "for", "foreach"},
			SingleLineComment:     "//",
			MultiLineCommentOpen:  "/*",
			MultiLineCommentClose: "*/",
			StringDelimiters:      []string{`"`},
			Seeded:                true,
		},
		{
			Language:       "kotlin",
			FileExtensions: []string{".kt"},
			FunctionDefPatterns: []string{
				`(?m)(?:suspend\s+)?fun\s+(?P<name>\w+)\s*[\(<]`,
			},
			ClassDefPatterns: []string{
				`(?m)(?:data\s+|open\s+|sealed\s+)*class\s+(?P<name>\w+)`,
			},
			SkipTokens:            []string{"fun", "class", "val", "var", "return", "when", "if", "for", "while", "object"},
			SingleLineComment:     "//",
			MultiLineCommentOpen:  "/*",
			MultiLineCommentClose: "*/",
			StringDelimiters:      []string{`"`},
			Seeded:                true,
		},
		{
			// Object Pascal / Delphi: interface section declares, the
			// implementation section defines TClass.Method bodies. Calls are
			// frequently bare identifiers with no parentheses.
			Language:       "delphi",
			FileExtensions: []string{".pas", ".dpr"},
			FunctionDefPatterns: []string{
				`(?mi)^\s*(?:procedure|function)\s+(?:(?P<class_prefix>\w+)\.)?(?P<name>\w+)\s*[\(;:]`,
			},
			ClassDefPatterns: []string{
				`(?mi)^\s*(?P<name>T\w+)\s*=\s*class\b`,
			},
			ForwardDecl: &ForwardDeclRule{BoundaryKeyword: "implementation"},
			Form: &FormRule{
				FileExtensions: []string{".dfm"},
				ObjectPattern:  `(?mi)^\s*object\s+(?P<name>\w+)\s*:`,
				EventPattern:   `(?mi)^\s*On\w+\s*=\s*(?P<handler>\w+)`,
			},
			SkipTokens: []string{
				"begin", "end", "procedure", "function", "var", "const", "uses",
				"unit", "interface", "implementation", "if", "then", "else",
				"while", "for", "repeat", "until", "case", "with", "try",
				"except", "finally", "raise", "inherited", "nil", "result",
				"showmessage", "exit",
			},
			SupportsBareIdentifiers: true,
			BareIDExcludeFollow:     `^\s*(?::=|\.)`,
			SingleLineComment:       "//",
			MultiLineCommentOpen:    "{",
			MultiLineCommentClose:   "}",
			StringDelimiters:        []string{"'"},
			LLMCallPrompt:           "\nDelphi notes: procedure calls are often bare identifiers without parentheses (e.g. `SaveData;`). Event handler assignments in code (Button.OnClick := HandleClick) bind but do not call. `inherited` is not a project call.",
			Seeded:                  true,
		},
		{
			// RPG (ILE free-form): explicit block delimiters, call targets
			// named as string literals in CALLP-style statements.
			Language:            "rpg",
			FileExtensions:      []string{".rpgle", ".sqlrpgle", ".rpg"},
			FunctionDefPatterns: []string{},
			ClassDefPatterns:    []string{},
			BlockRules: []BlockRule{
				{
					BlockType:    "procedure",
					OpenPattern:  `(?mi)^\s*DCL-PROC\s+(?P<name>\w+)`,
					ClosePattern: `(?mi)^\s*END-PROC\b[^;\n]*;?`,
				},
				{
					BlockType:    "subroutine",
					OpenPattern:  `(?mi)^\s*BEGSR\s+(?P<name>\w+)`,
					ClosePattern: `(?mi)^\s*ENDSR\b[^;\n]*;?`,
				},
			},
			CallKeywordPatterns: []string{
				`(?i)\bCALLP?\s+'?(?P<callee>\w+)'?`,
				`(?i)\bEXSR\s+(?P<callee>\w+)`,
			},
			SkipTokens: []string{
				"dcl-proc", "end-proc", "begsr", "endsr", "dcl-s", "dcl-ds",
				"end-ds", "if", "endif", "dow", "enddo", "select", "endsl",
				"return", "eval", "monitor", "on-error", "endmon",
			},
			SupportsBareIdentifiers: true,
			SingleLineComment:       "//",
			StringDelimiters:        []string{"'"},
			LLMCallPrompt:           "\nRPG notes: CALLP and EXSR statements are calls; the target may be quoted. Prototype declarations (DCL-PR) are not calls.",
			Seeded:                  true,
		},
	}
}

// NaiveKeywords returns the per-language keyword list used as the coverage
// ceiling when validating a generated profile: every line containing one of
// these should be matched by some definition pattern.
func NaiveKeywords(language string) []string {
	kw := map[string][]string{
		"python":     {"def ", "class "},
		"go":         {"func "},
		"javascript": {"function ", "class "},
		"typescript": {"function ", "class ", "interface "},
		"java":       {"void ", "class "},
		"csharp":     {"void ", "public ", "private ", "protected ", "class "},
		"kotlin":     {"fun ", "class "},
		"delphi":     {"procedure ", "function "},
		"rpg":        {"DCL-PROC ", "BEGSR "},
	}
	if v, ok := kw[language]; ok {
		return v
	}
	return []string{"function ", "procedure ", "def ", "sub "}
}

// LanguageSignatures lists keywords used to identify extensionless files:
// keyword occurrences are counted per file, a language scores for a file only
// with at least two hits, and all extensionless files go to the language with
// the highest total score.
func LanguageSignatures() map[string][]string {
	return map[string][]string{
		"python": {"def ", "import ", "self.", "__init__"},
		"delphi": {"procedure ", "begin", "end;", "unit ", "interface"},
		"rpg":    {"DCL-PROC", "BEGSR", "DCL-S", "EXSR"},
		"go":     {"func ", "package ", ":="},
	}
}
