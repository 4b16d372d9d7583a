package commerce_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/commerce-engine/commerce"
)

func TestMoney_JSON_KeepsCentsScale(t *testing.T) {
	// GIVEN: An amount read back from storage in cents
	// WHEN: It is encoded and decoded again
	// THEN: The decoded value is identical, scale included

	stored := commerce.MoneyFromCents(2500)

	data, err := json.Marshal(stored)
	require.NoError(t, err)
	assert.JSONEq(t, `"25.00"`, string(data))

	var decoded commerce.Money
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, stored, decoded)
}

func TestMoney_UnmarshalJSON_RoundsToCents(t *testing.T) {
	var m commerce.Money
	require.NoError(t, json.Unmarshal([]byte(`12.345`), &m))

	assert.Equal(t, "12.35", m.String())
	assert.Equal(t, int64(1235), m.Cents())
}
