package validation

import (
	"context"
	"fmt"
	"net/mail"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"unicode"
)

// Built-in rule names.
const (
	RuleRequired  = "required"
	RuleNullable  = "nullable"
	RuleAccepted  = "accepted"
	RuleMin       = "min"
	RuleMax       = "max"
	RuleSize      = "size"
	RuleBetween   = "between"
	RuleEmail     = "email"
	RuleURL       = "url"
	RuleAlpha     = "alpha"
	RuleAlphaNum  = "alpha_num"
	RuleAlphaDash = "alpha_dash"
	RuleNumeric   = "numeric"
	RuleInteger   = "integer"
	RuleRegex     = "regex"
	RuleIn        = "in"
	RuleNotIn     = "not_in"
	RuleSame      = "same"
	RuleDifferent = "different"
	RuleConfirmed = "confirmed"
	RuleGT        = "gt"
	RuleGTE       = "gte"
	RuleLT        = "lt"
	RuleLTE       = "lte"
	RuleUUID      = "uuid"
)

// checkFailedKey is the message rendered when a rule could not run at all.
const checkFailedKey = "check_failed"

func builtinDefinitions() []Definition {
	return []Definition{
		{Name: RuleRequired, Implicit: true, Check: checkRequired},
		{Name: RuleNullable, Marker: true},
		{Name: RuleAccepted, Implicit: true, Check: checkAccepted},
		{Name: RuleMin, ParamNames: []string{"min"}, Refs: AllParams, Check: sizeCheck(func(got, want float64) bool { return got >= want })},
		{Name: RuleMax, ParamNames: []string{"max"}, Refs: AllParams, Check: sizeCheck(func(got, want float64) bool { return got <= want })},
		{Name: RuleSize, ParamNames: []string{"size"}, Refs: AllParams, Check: sizeCheck(func(got, want float64) bool { return got == want })},
		{Name: RuleBetween, ParamNames: []string{"min", "max"}, Refs: AllParams, Check: checkBetween},
		{Name: RuleEmail, Check: stringCheck(isEmail)},
		{Name: RuleURL, Check: stringCheck(isURL)},
		{Name: RuleAlpha, Check: stringCheck(runesMatch(unicode.IsLetter))},
		{Name: RuleAlphaNum, Check: stringCheck(runesMatch(func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }))},
		{Name: RuleAlphaDash, Check: stringCheck(runesMatch(func(r rune) bool {
			return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_'
		}))},
		{Name: RuleNumeric, Check: checkNumeric},
		{Name: RuleInteger, Check: checkInteger},
		{Name: RuleRegex, ParamNames: []string{"pattern"}, Check: checkRegex},
		{Name: RuleIn, ParamNames: []string{"values"}, Check: checkIn(true)},
		{Name: RuleNotIn, ParamNames: []string{"values"}, Check: checkIn(false)},
		{Name: RuleSame, ParamNames: []string{"other"}, Refs: AllParams, Check: checkSame(true)},
		{Name: RuleDifferent, ParamNames: []string{"other"}, Refs: AllParams, Check: checkSame(false)},
		{Name: RuleConfirmed, Refs: confirmedRefs, Check: checkConfirmed},
		{Name: RuleGT, ParamNames: []string{"value"}, Refs: AllParams, Check: compareCheck(func(a, b float64) bool { return a > b })},
		{Name: RuleGTE, ParamNames: []string{"value"}, Refs: AllParams, Check: compareCheck(func(a, b float64) bool { return a >= b })},
		{Name: RuleLT, ParamNames: []string{"value"}, Refs: AllParams, Check: compareCheck(func(a, b float64) bool { return a < b })},
		{Name: RuleLTE, ParamNames: []string{"value"}, Refs: AllParams, Check: compareCheck(func(a, b float64) bool { return a <= b })},
		{Name: RuleUUID, Check: stringCheck(isUUID)},
	}
}

func checkRequired(_ context.Context, value any, _ Args) (bool, error) {
	return !IsEmpty(value), nil
}

func checkAccepted(_ context.Context, value any, _ Args) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "yes", "on", "1", "true":
			return true, nil
		}
		return false, nil
	}
	n, ok := toNumber(value)
	return ok && n == 1, nil
}

func sizeCheck(cmp func(got, want float64) bool) CheckFunc {
	return func(_ context.Context, value any, args Args) (bool, error) {
		want, err := numericParam(args, 0)
		if err != nil {
			return false, err
		}
		got, _, ok := Size(value, args.Numeric)
		if !ok {
			return false, nil
		}
		return cmp(got, want), nil
	}
}

func checkBetween(_ context.Context, value any, args Args) (bool, error) {
	lo, err := numericParam(args, 0)
	if err != nil {
		return false, err
	}
	hi, err := numericParam(args, 1)
	if err != nil {
		return false, err
	}
	got, _, ok := Size(value, args.Numeric)
	if !ok {
		return false, nil
	}
	return got >= lo && got <= hi, nil
}

// numericParam resolves a size threshold; a param naming another field uses
// that field's size.
func numericParam(args Args, idx int) (float64, error) {
	resolved, ok := args.Resolve(idx)
	if !ok {
		return 0, fmt.Errorf("%w: %s requires parameter %d", ErrMissingParam, args.Rule.Name, idx+1)
	}
	if args.IsReference(idx) {
		size, _, ok := Size(resolved, args.Numeric)
		if !ok {
			return 0, fmt.Errorf("validation: %s cannot measure referenced field %q", args.Rule.Name, args.Params[idx])
		}
		return size, nil
	}
	n, ok := toNumber(resolved)
	if !ok {
		return 0, fmt.Errorf("validation: %s parameter %q is not numeric", args.Rule.Name, toString(resolved))
	}
	return n, nil
}

func stringCheck(fn func(string) bool) CheckFunc {
	return func(_ context.Context, value any, _ Args) (bool, error) {
		if IsEmpty(value) {
			return false, nil
		}
		return fn(toString(value)), nil
	}
}

func runesMatch(fn func(rune) bool) func(string) bool {
	return func(s string) bool {
		for _, r := range s {
			if !fn(r) {
				return false
			}
		}
		return true
	}
}

func isEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return false
	}
	return addr.Address == s && strings.Contains(s[strings.LastIndex(s, "@"):], ".")
}

func isURL(s string) bool {
	u, err := url.ParseRequestURI(s)
	if err != nil {
		return false
	}
	return u.Scheme != "" && u.Host != ""
}

var uuidPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

func isUUID(s string) bool { return uuidPattern.MatchString(s) }

func checkNumeric(_ context.Context, value any, _ Args) (bool, error) {
	_, ok := toNumber(value)
	return ok, nil
}

func checkInteger(_ context.Context, value any, _ Args) (bool, error) {
	switch v := value.(type) {
	case string:
		_, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return err == nil, nil
	}
	n, ok := toNumber(value)
	return ok && n == float64(int64(n)), nil
}

var (
	regexCacheMu sync.Mutex
	regexCache   = map[string]*regexp.Regexp{}
)

func compilePattern(raw string) (*regexp.Regexp, error) {
	pattern := strings.TrimSpace(raw)
	// /pattern/ delimiters are accepted
	if len(pattern) >= 2 && strings.HasPrefix(pattern, "/") && strings.LastIndex(pattern, "/") > 0 {
		pattern = pattern[1:strings.LastIndex(pattern, "/")]
	}
	regexCacheMu.Lock()
	defer regexCacheMu.Unlock()
	if re, ok := regexCache[pattern]; ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("validation: invalid regex %q: %w", raw, err)
	}
	regexCache[pattern] = re
	return re, nil
}

func checkRegex(_ context.Context, value any, args Args) (bool, error) {
	raw, ok := args.Param(0)
	if !ok {
		return false, fmt.Errorf("%w: regex requires a pattern", ErrMissingParam)
	}
	re, err := compilePattern(raw)
	if err != nil {
		return false, err
	}
	return re.MatchString(toString(value)), nil
}

func checkIn(want bool) CheckFunc {
	return func(_ context.Context, value any, args Args) (bool, error) {
		needle := toString(value)
		for _, candidate := range args.Params {
			if candidate == needle {
				return want, nil
			}
		}
		return !want, nil
	}
}

func checkSame(want bool) CheckFunc {
	return func(_ context.Context, value any, args Args) (bool, error) {
		other, ok := args.Resolve(0)
		if !ok {
			return false, fmt.Errorf("%w: %s requires another field", ErrMissingParam, args.Rule.Name)
		}
		return equalValues(value, other) == want, nil
	}
}

func confirmedRefs(field string, _ []string) []string {
	return []string{confirmationPath(field)}
}

// confirmationPath returns "<field>_confirmation" next to the field.
func confirmationPath(field string) string {
	return field + "_confirmation"
}

func checkConfirmed(_ context.Context, value any, args Args) (bool, error) {
	if args.Env == nil {
		return false, nil
	}
	other, ok := args.Env.Lookup(confirmationPath(args.Env.Field()))
	if !ok {
		return false, nil
	}
	return equalValues(value, other), nil
}

func compareCheck(cmp func(a, b float64) bool) CheckFunc {
	return func(_ context.Context, value any, args Args) (bool, error) {
		other, ok := args.Resolve(0)
		if !ok {
			return false, fmt.Errorf("%w: %s requires a value", ErrMissingParam, args.Rule.Name)
		}
		got, _, ok := Size(value, args.Numeric)
		if !ok {
			return false, nil
		}
		want, _, ok := Size(other, args.Numeric || !args.IsReference(0))
		if !ok {
			return false, nil
		}
		return cmp(got, want), nil
	}
}
