package commerce_test

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/commerce-engine/commerce"
)

func TestGenerateSKU_Format(t *testing.T) {
	sku := commerce.GenerateSKU()

	assert.Regexp(t, regexp.MustCompile(`^PRD-[0-9A-F]{8}$`), sku)
	assert.NotEqual(t, sku, commerce.GenerateSKU())
}

func TestTitleize(t *testing.T) {
	assert.Equal(t, "Home Office Supplies", commerce.Titleize("  home   office supplies "))
	assert.Equal(t, "", commerce.Titleize("   "))
}

func TestProduct_Normalize_GeneratesSKUAndTitleizes(t *testing.T) {
	p := commerce.Product{Name: " mechanical keyboard ", Description: "Hot-swappable switches", Price: commerce.NewMoney(89.5), AdministratorID: 1}

	p.Normalize()

	assert.Equal(t, "Mechanical Keyboard", p.Name)
	assert.Regexp(t, `^PRD-`, p.SKU)
	assert.NoError(t, p.Validate())
}

func TestProduct_Validate(t *testing.T) {
	p := commerce.Product{Name: "X", Description: "short", Price: commerce.ZeroMoney(), Stock: -1}

	err := p.Validate()

	var vErr *commerce.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.ElementsMatch(t, []string{"name", "description", "price", "stock", "administrator"}, keys(vErr.Fields))
	assert.Contains(t, vErr.FullMessages(), "Price must be greater than 0")
}

func TestClient_Normalize(t *testing.T) {
	c := commerce.Client{Name: "Grace Hopper", Email: "  Grace@Example.COM ", Phone: "+1 (555) 010-9999"}

	c.Normalize()

	assert.Equal(t, "grace@example.com", c.Email)
	assert.Equal(t, "15550109999", c.Phone)
	assert.NoError(t, c.Validate())
}

func TestClient_Validate_BadEmailAndShortPhone(t *testing.T) {
	c := commerce.Client{Name: "Grace Hopper", Email: "not-an-email", Phone: "123"}

	var vErr *commerce.ValidationError
	require.ErrorAs(t, c.Validate(), &vErr)
	assert.Equal(t, []string{"is invalid"}, vErr.Fields["email"])
	assert.Equal(t, []string{"is too short (minimum is 8 characters)"}, vErr.Fields["phone"])
}

func TestAdministrator_Normalize_DefaultsRole(t *testing.T) {
	a := commerce.Administrator{Name: "Root", Email: " ROOT@shop.test", PasswordDigest: "x"}

	a.Normalize()

	assert.Equal(t, commerce.RoleAdmin, a.Role)
	assert.Equal(t, "root@shop.test", a.Email)
	assert.NoError(t, a.Validate())
}

func TestValidatePassword(t *testing.T) {
	assert.NoError(t, commerce.ValidatePassword("password123"))
	assert.ErrorIs(t, commerce.ValidatePassword("short"), commerce.ErrValidation)
	assert.ErrorIs(t, commerce.ValidatePassword(""), commerce.ErrValidation)
}

func keys(m map[string][]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
