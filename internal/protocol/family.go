package protocol

// Family identifies a routable feature family.
type Family int

// Feature families.
const (
	FamilyHover Family = iota + 1
	FamilyCompletion
	FamilyDefinition
	FamilyReferences
	FamilyCodeAction
	FamilyCodeLens
	FamilyDocumentHighlight
	FamilyDocumentLink
	FamilyRename
	FamilySignatureHelp
	FamilyDocumentSymbol
	FamilyFormatting
	FamilyColor
	FamilyTypeDefinition
	FamilyImplementation
	FamilyWorkspaceSymbol
	FamilyExecuteCommand
)

var familyInfo = map[Family]struct {
	name   string
	method string
}{
	FamilyHover:             {"hover", MethodHover},
	FamilyCompletion:        {"completion", MethodCompletion},
	FamilyDefinition:        {"definitions", MethodDefinition},
	FamilyReferences:        {"references", MethodReferences},
	FamilyCodeAction:        {"codeActions", MethodCodeAction},
	FamilyCodeLens:          {"codeLens", MethodCodeLens},
	FamilyDocumentHighlight: {"documentHighlights", MethodDocumentHighlight},
	FamilyDocumentLink:      {"documentLinks", MethodDocumentLink},
	FamilyRename:            {"rename", MethodRename},
	FamilySignatureHelp:     {"signatureHelp", MethodSignatureHelp},
	FamilyDocumentSymbol:    {"symbols", MethodDocumentSymbol},
	FamilyFormatting:        {"formatting", MethodFormatting},
	FamilyColor:             {"colors", MethodDocumentColor},
	FamilyTypeDefinition:    {"typeDefinitions", MethodTypeDefinition},
	FamilyImplementation:    {"implementations", MethodImplementation},
	FamilyWorkspaceSymbol:   {"workspaceSymbols", MethodWorkspaceSymbol},
	FamilyExecuteCommand:    {"commands", MethodExecuteCommand},
}

// Families lists every family in declaration order.
func Families() []Family {
	out := make([]Family, 0, len(familyInfo))
	for f := FamilyHover; f <= FamilyExecuteCommand; f++ {
		out = append(out, f)
	}
	return out
}

// String returns the family name.
func (f Family) String() string {
	if info, ok := familyInfo[f]; ok {
		return info.name
	}
	return "unknown"
}

// Method returns the request method that serves the family.
func (f Family) Method() string {
	return familyInfo[f].method
}

// FamilyForMethod returns the family served by method.
func FamilyForMethod(method string) (Family, bool) {
	for f, info := range familyInfo {
		if info.method == method {
			return f, true
		}
	}
	return 0, false
}

// ParseFamily looks a family up by name.
func ParseFamily(name string) (Family, bool) {
	for f, info := range familyInfo {
		if info.name == name {
			return f, true
		}
	}
	return 0, false
}
