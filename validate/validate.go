// Package validate holds chain-aware address and amount validation used
// by callers before handing values to the authorization engines.
package validate

import (
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// ChainKind selects the address format to validate against.
type ChainKind string

const (
	// ChainAny accepts any supported address format
	ChainAny ChainKind = ""

	ChainEVM     ChainKind = "evm"
	ChainSolana  ChainKind = "solana"
	ChainBitcoin ChainKind = "bitcoin"
	ChainTron    ChainKind = "tron"
)

const (
	MinExpiryHours = 1
	MaxExpiryHours = 168
)

var (
	// Solana: base58, 32-44 characters
	solanaAddressPattern = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)

	btcLegacyPattern  = regexp.MustCompile(`^[13][a-km-zA-HJ-NP-Z1-9]{25,34}$`)
	btcSegwitPattern  = regexp.MustCompile(`^bc1[a-zA-HJ-NP-Z0-9]{25,89}$`)
	btcTaprootPattern = regexp.MustCompile(`^bc1p[a-zA-HJ-NP-Z0-9]{58}$`)

	tronAddressPattern = regexp.MustCompile(`^T[1-9A-HJ-NP-Za-km-z]{33}$`)
)

// Cyrillic characters that render like Latin ones. Addresses carrying
// them are treated as hostile.
var cyrillicHomoglyphs = map[rune]rune{
	'а': 'a',
	'е': 'e',
	'о': 'o',
	'р': 'p',
	'с': 'c',
	'х': 'x',
	'А': 'A',
	'В': 'B',
	'Е': 'E',
	'К': 'K',
	'М': 'M',
	'Н': 'H',
	'О': 'O',
	'Р': 'P',
	'С': 'C',
	'Т': 'T',
	'Х': 'X',
}

// HomoglyphDetails describes suspicious characters found in an address.
type HomoglyphDetails struct {
	Address  string
	Detected []DetectedCharacter
}

type DetectedCharacter struct {
	Position     int
	Character    string
	UnicodePoint string
	Expected     string
}

// IsValidEVMAddress reports whether address is a 0x-prefixed 20-byte
// hex address. The prefix is mandatory; common.IsHexAddress alone would
// accept a bare 40-char hex string.
func IsValidEVMAddress(address string) bool {
	return strings.HasPrefix(address, "0x") && common.IsHexAddress(address)
}

// IsValidSolanaAddress reports whether address is base58 of Solana length.
func IsValidSolanaAddress(address string) bool {
	return solanaAddressPattern.MatchString(address)
}

// IsValidBitcoinAddress accepts legacy, segwit and taproot formats.
func IsValidBitcoinAddress(address string) bool {
	return btcLegacyPattern.MatchString(address) ||
		btcSegwitPattern.MatchString(address) ||
		btcTaprootPattern.MatchString(address)
}

// IsValidTronAddress reports whether address is a base58check Tron address.
func IsValidTronAddress(address string) bool {
	return tronAddressPattern.MatchString(address)
}

// IsValidAddress reports whether address is valid on any supported chain.
func IsValidAddress(address string) bool {
	return IsValidEVMAddress(address) ||
		IsValidSolanaAddress(address) ||
		IsValidBitcoinAddress(address) ||
		IsValidTronAddress(address)
}

// ValidateAddress checks address against the given chain kind, homoglyph
// scan first.
func ValidateAddress(address string, chain ChainKind) error {
	if address == "" {
		return errors.New("address is required")
	}

	if details := DetectHomoglyphs(address); details != nil {
		return fmt.Errorf("address %q contains homoglyph characters at %d position(s)",
			address, len(details.Detected))
	}

	valid := false
	switch chain {
	case ChainEVM:
		valid = IsValidEVMAddress(address)
	case ChainSolana:
		valid = IsValidSolanaAddress(address)
	case ChainBitcoin:
		valid = IsValidBitcoinAddress(address)
	case ChainTron:
		valid = IsValidTronAddress(address)
	default:
		valid = IsValidAddress(address)
	}

	if !valid {
		return fmt.Errorf("invalid %s address: %s", chainName(chain), address)
	}

	return nil
}

// DetectHomoglyphs returns details for every Cyrillic look-alike found,
// or nil when the address is clean.
func DetectHomoglyphs(address string) *HomoglyphDetails {
	var detected []DetectedCharacter

	for i, r := range address {
		if expected, ok := cyrillicHomoglyphs[r]; ok {
			detected = append(detected, DetectedCharacter{
				Position:     i,
				Character:    string(r),
				UnicodePoint: "U+" + strconv.FormatInt(int64(r), 16),
				Expected:     string(expected),
			})
		}
	}

	if len(detected) == 0 {
		return nil
	}

	return &HomoglyphDetails{Address: address, Detected: detected}
}

// ValidateAmount requires a positive amount.
func ValidateAmount(amount *big.Int) error {
	if amount == nil {
		return errors.New("amount is required")
	}
	if amount.Sign() <= 0 {
		return errors.New("amount must be positive")
	}
	return nil
}

// ValidateExpiryHours bounds caller-supplied expiry windows.
func ValidateExpiryHours(hours int) error {
	if hours < MinExpiryHours || hours > MaxExpiryHours {
		return fmt.Errorf("expiry hours must be between %d and %d", MinExpiryHours, MaxExpiryHours)
	}
	return nil
}

// ContainsNonASCII reports whether s has characters above 0x7f.
func ContainsNonASCII(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII {
			return true
		}
	}
	return false
}

// NormalizeAddress lowercases an address for comparison.
func NormalizeAddress(address string) string {
	return strings.ToLower(address)
}

func chainName(chain ChainKind) string {
	if chain == ChainAny {
		return "any-chain"
	}
	return string(chain)
}
