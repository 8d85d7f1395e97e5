package normalization

import (
  "strings"
  "unicode"
)

func ParseInputString(input string) string {
  normalized := strings.ToLower(strings.TrimSpace(input))
  return normalized
}

func ParseInputStringPtr(input *string) *string {
  if input == nil {
    return nil
  }
  normalized := strings.ToLower(strings.TrimSpace(*input))
  return &normalized
}

// NormalizeEmail lowercases, trims and folds gmail dot/plus aliases so that
// "J.Doe+promo@Gmail.com" and "jdoe@gmail.com" compare equal. Returns ""
// for anything without an "@".
func NormalizeEmail(email string) string {
  email = strings.ToLower(strings.TrimSpace(email))
  if !strings.Contains(email, "@") {
    return ""
  }
  parts := strings.SplitN(email, "@", 2)
  local, domain := parts[0], parts[1]
  if domain == "gmail.com" || domain == "googlemail.com" {
    local = strings.ReplaceAll(local, ".", "")
    if idx := strings.Index(local, "+"); idx != -1 {
      local = local[:idx]
    }
    domain = "gmail.com"
  }
  return local + "@" + domain
}

// NormalizePhone strips everything that is not a digit; comparisons happen on
// the raw digit string.
func NormalizePhone(phone string) string {
  var b strings.Builder
  for _, r := range phone {
    if r >= '0' && r <= '9' {
      b.WriteRune(r)
    }
  }
  return b.String()
}

// NormalizeName lowercases and collapses interior whitespace.
func NormalizeName(name string) string {
  return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// NormalizeAddress lowercases, drops punctuation and collapses whitespace so
// "123 Main St., Apt 4" and "123 main st apt 4" compare equal.
func NormalizeAddress(address string) string {
  var b strings.Builder
  for _, r := range strings.ToLower(address) {
    switch {
    case unicode.IsLetter(r) || unicode.IsDigit(r):
      b.WriteRune(r)
    case unicode.IsSpace(r):
      b.WriteRune(' ')
    }
  }
  return strings.Join(strings.Fields(b.String()), " ")
}
