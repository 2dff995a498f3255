package registry

import (
	"encoding/json"

	"github.com/dshills/exthost/internal/protocol"
)

// StaticID returns the id of the static registration of family f by owner.
func StaticID(owner string, f protocol.Family) string {
	return owner + "/" + f.String()
}

// FromCapabilities turns every family declared in caps into a static
// registration owned by owner and scoped by selector. Options declared
// with the capability are carried as registration options.
func FromCapabilities(owner string, caps protocol.ServerCapabilities, selector protocol.DocumentSelector) []Registration {
	var out []Registration
	for _, f := range caps.SupportedFamilies() {
		reg := Registration{
			ID:       StaticID(owner, f),
			Method:   f.Method(),
			Owner:    owner,
			Selector: selector,
			Static:   true,
		}
		c := caps.Capability(f)
		if c.Kind() == protocol.CapabilityOptions {
			if raw, err := json.Marshal(c); err == nil {
				reg.Options = raw
			}
		}
		if f == protocol.FamilyWorkspaceSymbol || f == protocol.FamilyExecuteCommand {
			// not document scoped
			reg.Selector = nil
		}
		out = append(out, reg)
	}
	return out
}
