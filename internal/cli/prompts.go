package cli

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/AlecAivazis/survey/v2"
)

var codePattern = regexp.MustCompile(`^[A-Za-z0-9.]{1,12}$`)

// PromptForCodes asks for one or more instrument codes separated by spaces
// or commas.
func PromptForCodes() ([]string, error) {
	var answer string
	prompt := &survey.Input{
		Message: "Enter instrument codes (e.g. 600519 000001 AAPL 00700.HK):",
		Help:    "A-share six-digit codes, US tickers, or HK codes with the .HK suffix",
	}

	err := survey.AskOne(prompt, &answer, survey.WithValidator(func(val interface{}) error {
		str, _ := val.(string)
		codes := splitCodes(str)
		if len(codes) == 0 {
			return fmt.Errorf("at least one code is required")
		}
		for _, code := range codes {
			if !codePattern.MatchString(code) {
				return fmt.Errorf("invalid code %q", code)
			}
		}
		return nil
	}))
	if err != nil {
		return nil, err
	}

	return normalizeCodes(splitCodes(answer)), nil
}

func splitCodes(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == '，' || r == ' ' || r == '\t'
	})
}

// normalizeCodes trims and upper-cases codes and drops duplicates, keeping
// first-seen order.
func normalizeCodes(codes []string) []string {
	seen := make(map[string]bool, len(codes))
	out := make([]string, 0, len(codes))
	for _, raw := range codes {
		for _, code := range splitCodes(raw) {
			code = strings.ToUpper(strings.TrimSpace(code))
			if code == "" || seen[code] {
				continue
			}
			seen[code] = true
			out = append(out, code)
		}
	}
	return out
}
