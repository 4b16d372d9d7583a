package commerce

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// =============================================================================
// CATALOG NORMALIZATION - Applied before validation on every create
// =============================================================================

const MinPasswordLength = 8

var (
	emailRe    = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	nonDigitRe = regexp.MustCompile(`\D`)
)

// GenerateSKU returns "PRD-" followed by eight uppercase hex digits.
func GenerateSKU() string {
	id := uuid.New()
	return "PRD-" + strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:8])
}

// Titleize trims s and capitalizes each word.
func Titleize(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return s
	}
	// Casers are stateful; one per call keeps this safe for concurrent use.
	return cases.Title(language.Und).String(s)
}

func NormalizeEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// NormalizePhone keeps digits only.
func NormalizePhone(s string) string { return nonDigitRe.ReplaceAllString(s, "") }

// =============================================================================
// NORMALIZE + VALIDATE
// =============================================================================

// Normalize lower-cases the email and defaults the role. The password digest
// is produced by the auth package.
func (a *Administrator) Normalize() {
	a.Name = strings.TrimSpace(a.Name)
	a.Email = NormalizeEmail(a.Email)
	if a.Role == "" {
		a.Role = RoleAdmin
	}
}

func (a *Administrator) Validate() error {
	v := NewValidationError()
	checkLength(v, "name", a.Name, 2, 100)
	checkEmail(v, "email", a.Email)
	if a.PasswordDigest == "" {
		v.Add("password", "can't be blank")
	}
	if !a.Role.Valid() {
		v.Add("role", "is not included in the list")
	}
	return v.OrNil()
}

// ValidatePassword checks a plaintext password before it is hashed.
func ValidatePassword(password string) error {
	v := NewValidationError()
	switch {
	case password == "":
		v.Add("password", "can't be blank")
	case utf8.RuneCountInString(password) < MinPasswordLength:
		v.Add("password", "is too short (minimum is 8 characters)")
	}
	return v.OrNil()
}

func (c *Category) Normalize() {
	c.Name = Titleize(c.Name)
	c.Description = strings.TrimSpace(c.Description)
}

func (c *Category) Validate() error {
	v := NewValidationError()
	checkLength(v, "name", c.Name, 2, 100)
	if utf8.RuneCountInString(c.Description) > 500 {
		v.Add("description", "is too long (maximum is 500 characters)")
	}
	if c.AdministratorID <= 0 {
		v.Add("administrator", "must exist")
	}
	return v.OrNil()
}

// Normalize titleizes the name and generates a SKU when none was given.
func (p *Product) Normalize() {
	p.Name = Titleize(p.Name)
	p.Description = strings.TrimSpace(p.Description)
	p.SKU = strings.TrimSpace(p.SKU)
	if p.SKU == "" {
		p.SKU = GenerateSKU()
	}
	p.Price = p.Price.Round()
}

func (p *Product) Validate() error {
	v := NewValidationError()
	checkLength(v, "name", p.Name, 2, 200)
	checkLength(v, "description", p.Description, 10, 2000)
	if !p.Price.IsPositive() {
		v.Add("price", "must be greater than 0")
	}
	if p.Stock < 0 {
		v.Add("stock", "must be greater than or equal to 0")
	}
	if p.AdministratorID <= 0 {
		v.Add("administrator", "must exist")
	}
	return v.OrNil()
}

func (c *Client) Normalize() {
	c.Name = strings.TrimSpace(c.Name)
	c.Email = NormalizeEmail(c.Email)
	c.Phone = NormalizePhone(c.Phone)
	c.Address = strings.TrimSpace(c.Address)
}

func (c *Client) Validate() error {
	v := NewValidationError()
	checkLength(v, "name", c.Name, 2, 100)
	checkEmail(v, "email", c.Email)
	checkLength(v, "phone", c.Phone, 8, 20)
	if utf8.RuneCountInString(c.Address) > 500 {
		v.Add("address", "is too long (maximum is 500 characters)")
	}
	return v.OrNil()
}

func checkLength(v *ValidationError, field, value string, min, max int) {
	n := utf8.RuneCountInString(value)
	switch {
	case n == 0:
		v.Add(field, "can't be blank")
	case n < min:
		v.Add(field, "is too short (minimum is "+strconv.Itoa(min)+" characters)")
	case n > max:
		v.Add(field, "is too long (maximum is "+strconv.Itoa(max)+" characters)")
	}
}

func checkEmail(v *ValidationError, field, value string) {
	switch {
	case value == "":
		v.Add(field, "can't be blank")
	case !emailRe.MatchString(value):
		v.Add(field, "is invalid")
	}
}
