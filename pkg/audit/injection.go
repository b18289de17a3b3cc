package audit

import (
	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionCheckResult contains the result of an injection check on free text.
type InjectionCheckResult struct {
	IsSQLi      bool
	Fingerprint string // libinjection fingerprint of the detected pattern
}

// CheckForInjection runs libinjection over text. Returns nil when nothing is detected.
//
//	CheckForInjection("monthly revenue by region")     // nil
//	CheckForInjection("x'; DROP TABLE users--")        // IsSQLi, Fingerprint "s&1c" or similar
func CheckForInjection(text string) *InjectionCheckResult {
	if text == "" {
		return nil
	}
	isSQLi, fingerprint := libinjection.IsSQLi(text)
	if !isSQLi {
		return nil
	}
	return &InjectionCheckResult{IsSQLi: true, Fingerprint: string(fingerprint)}
}
