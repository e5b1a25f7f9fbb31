package pbcore

import "strings"

// CanonicalID returns the id of the first identifier issued by authority,
// with "/" replaced by "-" so it is safe as a storage id.
func CanonicalID(ids []Identifier, authority string) (string, bool) {
	for _, id := range ids {
		if id.Source == authority {
			value := strings.TrimSpace(id.Value)
			if value == "" {
				continue
			}
			return strings.ReplaceAll(value, "/", "-"), true
		}
	}
	return "", false
}

// LocalIdentifiers returns the identifiers not issued by authority
func LocalIdentifiers(ids []Identifier, authority string) []Identifier {
	var out []Identifier
	for _, id := range ids {
		if id.Source != authority {
			out = append(out, id)
		}
	}
	return out
}

// PartitionInstantiations splits instantiations into digital and physical,
// preserving order within each group
func PartitionInstantiations(insts []Instantiation) (digital, physical []Instantiation) {
	for _, inst := range insts {
		if inst.IsDigital() {
			digital = append(digital, inst)
		} else {
			physical = append(physical, inst)
		}
	}
	return digital, physical
}
