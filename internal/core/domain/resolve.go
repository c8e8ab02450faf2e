package domain

// =============================================================================
// Selection
// =============================================================================

// Selection is one invocation's resolved CLI input: the image tag, the
// projects selected for local development, and the enable/disable flag tokens
// that were actually passed. It is computed once per run and never persisted.
type Selection struct {
	Tag         string
	DevProjects []string

	// EnableTokens and DisableTokens hold the tokens of --enable-X and
	// --disable-X flags that were passed. Missing tokens mean "not passed".
	EnableTokens  map[string]bool
	DisableTokens map[string]bool
}

// EnablePassed reports whether --enable-<token> was passed.
func (sel Selection) EnablePassed(token string) bool {
	return sel.EnableTokens[token]
}

// DisablePassed reports whether --disable-<token> was passed.
func (sel Selection) DisablePassed(token string) bool {
	return sel.DisableTokens[token]
}

// IsDevProject reports whether the named project was selected for local
// development.
func (sel Selection) IsDevProject(name string) bool {
	for _, p := range sel.DevProjects {
		if p == name {
			return true
		}
	}
	return false
}

// =============================================================================
// Enabled Resolution
// =============================================================================

// IsEnabled resolves whether a service runs under the given selection.
//
// A service with no gate is always enabled. An enable gate turns the service
// on only when its flag was passed; a disable gate turns it off only when its
// flag was passed. When both gates are configured the service is enabled if
// either condition alone would enable it, so an explicit --enable-x is never
// silently overridden by a stale --disable-x.
func IsEnabled(svc Service, sel Selection) bool {
	if !svc.Gated() {
		return true
	}
	enabled := false
	if svc.Enable.Set() {
		enabled = sel.EnablePassed(svc.Enable.Token(svc.Name))
	}
	if svc.Disable.Set() {
		enabled = enabled || !sel.DisablePassed(svc.Disable.Token(svc.Name))
	}
	return enabled
}

// EnabledStatus computes the enabled state of every flag-gated service.
// Ungated services are omitted; lookups should default to enabled.
func EnabledStatus(services []Service, sel Selection) map[ServiceKey]bool {
	status := make(map[ServiceKey]bool)
	for _, svc := range services {
		if svc.Gated() {
			status[svc.Key()] = IsEnabled(svc, sel)
		}
	}
	return status
}

// =============================================================================
// Dynamic Option Resolution
// =============================================================================

// OptionValue is a resolved environment-file entry. An empty value means the
// entry should be removed from the file.
type OptionValue struct {
	Key   string
	Value string
}

// ResolveDynamicOptions maps every declared dynamic option to the value
// dictated by its owning service's enabled state. Keys appear in first
// declaration order; when two services declare the same key, the last
// declaration in configuration order owns it.
func ResolveDynamicOptions(services []Service, status map[ServiceKey]bool) []OptionValue {
	type owner struct {
		svc Service
		opt DynamicOption
	}
	var order []string
	owners := make(map[string]owner)
	for _, svc := range services {
		for _, opt := range svc.DynamicOptions {
			if _, seen := owners[opt.Key]; !seen {
				order = append(order, opt.Key)
			}
			owners[opt.Key] = owner{svc: svc, opt: opt}
		}
	}

	values := make([]OptionValue, 0, len(order))
	for _, key := range order {
		own := owners[key]
		enabled, tracked := status[own.svc.Key()]
		if !tracked {
			enabled = true
		}
		value := own.opt.Disabled
		if enabled {
			value = own.opt.Enabled
		}
		values = append(values, OptionValue{Key: key, Value: value})
	}
	return values
}

// =============================================================================
// Flag Token Enumeration
// =============================================================================

// FlagToken is a distinct enable or disable flag token together with the
// services it toggles, in configuration order. The CLI registers one flag per
// token.
type FlagToken struct {
	Token    string
	Services []Service
}

// EnableFlagTokens lists the distinct tokens of all enable gates.
func EnableFlagTokens(services []Service) []FlagToken {
	return flagTokens(services, func(svc Service) FlagGate { return svc.Enable })
}

// DisableFlagTokens lists the distinct tokens of all disable gates.
func DisableFlagTokens(services []Service) []FlagToken {
	return flagTokens(services, func(svc Service) FlagGate { return svc.Disable })
}

func flagTokens(services []Service, gate func(Service) FlagGate) []FlagToken {
	var tokens []FlagToken
	index := make(map[string]int)
	for _, svc := range services {
		g := gate(svc)
		if !g.Set() {
			continue
		}
		token := g.Token(svc.Name)
		i, seen := index[token]
		if !seen {
			index[token] = len(tokens)
			tokens = append(tokens, FlagToken{Token: token})
			i = len(tokens) - 1
		}
		tokens[i].Services = append(tokens[i].Services, svc)
	}
	return tokens
}
