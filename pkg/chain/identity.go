package chain

import "strings"

// SignerIdentity walks aggregation chains in order and, for each link
// carrying metadata, appends metadata.client_id to an ordered list,
// joining with "." to form the signer identity string (spec.md §4.2,
// §8). Legacy raw-bytes pseudo-metadata (spec.md §9 open question) is
// normalized to its opaque token and folded in as a plain client_id;
// hadLegacy reports whether any legacy pseudo-metadata was encountered,
// so callers can surface a warning.
func SignerIdentity(chains []AggregationChain) (identity string, hadLegacy bool) {
	var parts []string
	for _, c := range chains {
		for _, l := range c.Links {
			if l.SiblingKind != SiblingMetadata {
				continue
			}
			parts = append(parts, l.SiblingMetadata.ClientID)
			if l.SiblingMetadata.Legacy {
				hadLegacy = true
			}
		}
	}
	return strings.Join(parts, "."), hadLegacy
}
