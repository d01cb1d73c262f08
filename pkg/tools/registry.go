package tools

// Category classifies what a tool is able to do to the user's vault or machine.
type Category string

const (
	CategoryReadOnly   Category = "read-only"
	CategorySafeUI     Category = "safe-ui"
	CategoryControlled Category = "controlled"
	CategoryWrite      Category = "write"
	CategoryShell      Category = "shell"
	CategorySubagent   Category = "subagent"
)

// AllCategories returns every valid tool category.
func AllCategories() []Category {
	return []Category{
		CategoryReadOnly,
		CategorySafeUI,
		CategoryControlled,
		CategoryWrite,
		CategoryShell,
		CategorySubagent,
	}
}

// RiskLevel grades how much damage a tool can do if misused.
type RiskLevel string

const (
	RiskNone   RiskLevel = "none"
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Well-known tool names surfaced by the agent engine.
const (
	ToolRead       = "Read"
	ToolGlob       = "Glob"
	ToolGrep       = "Grep"
	ToolWebFetch   = "WebFetch"
	ToolWebSearch  = "WebSearch"
	ToolTodoRead   = "TodoRead"
	ToolTodoWrite  = "TodoWrite"
	ToolOpenNote   = "OpenNote"
	ToolShowNotice = "ShowNotice"
	ToolRunCommand = "RunCommand"
	ToolWrite      = "Write"
	ToolEdit       = "Edit"
	ToolMultiEdit  = "MultiEdit"
	ToolCreateNote = "CreateNote"
	ToolBash       = "Bash"
	ToolTask       = "Task"
)

// categories maps every registered tool to exactly one category.
var categories = map[string]Category{
	ToolRead:       CategoryReadOnly,
	ToolGlob:       CategoryReadOnly,
	ToolGrep:       CategoryReadOnly,
	ToolWebFetch:   CategoryReadOnly,
	ToolWebSearch:  CategoryReadOnly,
	ToolTodoRead:   CategoryReadOnly,
	ToolTodoWrite:  CategorySafeUI,
	ToolOpenNote:   CategorySafeUI,
	ToolShowNotice: CategorySafeUI,
	ToolRunCommand: CategoryControlled,
	ToolWrite:      CategoryWrite,
	ToolEdit:       CategoryWrite,
	ToolMultiEdit:  CategoryWrite,
	ToolCreateNote: CategoryWrite,
	ToolBash:       CategoryShell,
	ToolTask:       CategorySubagent,
}

// riskByCategory assigns the default risk per category.
var riskByCategory = map[Category]RiskLevel{
	CategoryReadOnly:   RiskNone,
	CategorySafeUI:     RiskNone,
	CategoryControlled: RiskMedium,
	CategoryWrite:      RiskMedium,
	CategoryShell:      RiskHigh,
	CategorySubagent:   RiskLow,
}

// riskOverrides adjusts individual tools away from their category default.
var riskOverrides = map[string]RiskLevel{
	ToolWebFetch:  RiskLow,
	ToolWebSearch: RiskLow,
}

// CategoryOf returns the category of a registered tool and whether the tool
// is known at all.
func CategoryOf(name string) (Category, bool) {
	cat, ok := categories[name]
	return cat, ok
}

// IsReadOnly reports whether the tool only reads vault or web content.
func IsReadOnly(name string) bool {
	return categories[name] == CategoryReadOnly
}

// IsSafeUI reports whether the tool only touches UI affordances.
func IsSafeUI(name string) bool {
	return categories[name] == CategorySafeUI
}

// IsControlled reports whether the tool invokes an externally named host
// command and therefore requires an allowlist entry.
func IsControlled(name string) bool {
	return categories[name] == CategoryControlled
}

// IsWrite reports whether the tool mutates vault content.
func IsWrite(name string) bool {
	return categories[name] == CategoryWrite
}

// IsShell reports whether the tool executes shell commands.
func IsShell(name string) bool {
	return categories[name] == CategoryShell
}

// IsSubagent reports whether the tool spawns a nested agent.
func IsSubagent(name string) bool {
	return categories[name] == CategorySubagent
}

// CreatesFiles reports whether the tool creates new files from a target path
// in its input, which makes it subject to path-safety checks.
func CreatesFiles(name string) bool {
	return name == ToolWrite || name == ToolCreateNote
}

// Registered returns the names of all registered tools.
func Registered() []string {
	names := make([]string, 0, len(categories))
	for name := range categories {
		names = append(names, name)
	}
	return names
}

// RiskLevelOf returns the risk level for a tool name. Unknown tools are
// graded medium: a tool the registry has never seen must never be treated
// as harmless.
func RiskLevelOf(name string) RiskLevel {
	if risk, ok := riskOverrides[name]; ok {
		return risk
	}
	cat, ok := categories[name]
	if !ok {
		return RiskMedium
	}
	return riskByCategory[cat]
}
