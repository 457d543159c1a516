package policy

// GeneralPolicy composes the default verification strategy spec.md
// §4.4 names: publication-based, falling back to key-based, falling
// back to calendar-based (itself gated on ctx.AllowExtending).
func GeneralPolicy() *Policy {
	pub := PublicationPolicy()
	pub.Fallback = KeyPolicy()
	pub.Fallback.Fallback = CalendarPolicy()
	return pub
}
