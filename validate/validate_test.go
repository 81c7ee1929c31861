package validate

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEVMAddresses(t *testing.T) {
	assert.True(t, IsValidEVMAddress("0x1111111111111111111111111111111111111111"))
	assert.True(t, IsValidEVMAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"))
	assert.False(t, IsValidEVMAddress("0x123"))
	assert.False(t, IsValidEVMAddress("1111111111111111111111111111111111111111"))
	assert.False(t, IsValidEVMAddress(""))
}

func TestSolanaAddresses(t *testing.T) {
	assert.True(t, IsValidSolanaAddress("DYw8jCTfwHNRJhhmFcbXvVDTqWMEVFBX6ZKUmG5CNSKK"))
	assert.False(t, IsValidSolanaAddress("0x1111111111111111111111111111111111111111"))
	assert.False(t, IsValidSolanaAddress("short"))
}

func TestBitcoinAddresses(t *testing.T) {
	assert.True(t, IsValidBitcoinAddress("1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"))
	assert.True(t, IsValidBitcoinAddress("bc1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq"))
	assert.False(t, IsValidBitcoinAddress("0x1111111111111111111111111111111111111111"))
}

func TestTronAddresses(t *testing.T) {
	assert.True(t, IsValidTronAddress("TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"))
	assert.False(t, IsValidTronAddress("R7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6tX"))
	assert.False(t, IsValidTronAddress("T123"))
}

func TestValidateAddressByChain(t *testing.T) {
	assert.NoError(t, ValidateAddress("0x1111111111111111111111111111111111111111", ChainEVM))
	assert.Error(t, ValidateAddress("0x1111111111111111111111111111111111111111", ChainSolana))
	assert.NoError(t, ValidateAddress("TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t", ChainTron))
	assert.Error(t, ValidateAddress("", ChainEVM))
	assert.NoError(t, ValidateAddress("1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa", ChainAny))
}

func TestHomoglyphDetection(t *testing.T) {
	// 'а' and 'е' below are Cyrillic
	details := DetectHomoglyphs("0xаbсdе11111111111111111111111111111111111")
	assert.NotNil(t, details)
	assert.NotEmpty(t, details.Detected)
	assert.Equal(t, "a", details.Detected[0].Expected)

	assert.Nil(t, DetectHomoglyphs("0x1111111111111111111111111111111111111111"))

	err := ValidateAddress("0xаaaa111111111111111111111111111111111111", ChainEVM)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "homoglyph")
}

func TestValidateAmount(t *testing.T) {
	assert.NoError(t, ValidateAmount(big.NewInt(1)))
	assert.Error(t, ValidateAmount(big.NewInt(0)))
	assert.Error(t, ValidateAmount(big.NewInt(-5)))
	assert.Error(t, ValidateAmount(nil))
}

func TestValidateExpiryHours(t *testing.T) {
	assert.NoError(t, ValidateExpiryHours(1))
	assert.NoError(t, ValidateExpiryHours(72))
	assert.NoError(t, ValidateExpiryHours(168))
	assert.Error(t, ValidateExpiryHours(0))
	assert.Error(t, ValidateExpiryHours(169))
	assert.Error(t, ValidateExpiryHours(-1))
}

func TestContainsNonASCII(t *testing.T) {
	assert.False(t, ContainsNonASCII("0xabc123"))
	assert.True(t, ContainsNonASCII("0xаbc123"))
}

func TestNormalizeAddress(t *testing.T) {
	assert.Equal(t, "0xabcd", NormalizeAddress("0xAbCd"))
}
