package token

import (
	"fmt"
	"math"

	"github.com/stellar/go/strkey"
	"github.com/stellar/go/xdr"
)

func accountScVal(address string) (xdr.ScVal, error) {
	accountID, err := xdr.AddressToAccountId(address)
	if err != nil {
		return xdr.ScVal{}, fmt.Errorf("invalid account address %q: %w", address, err)
	}

	scAddress := xdr.ScAddress{
		Type:      xdr.ScAddressTypeScAddressTypeAccount,
		AccountId: &accountID,
	}
	return xdr.ScVal{Type: xdr.ScValTypeScvAddress, Address: &scAddress}, nil
}

func contractScAddress(contractID string) (xdr.ScAddress, error) {
	raw, err := strkey.Decode(strkey.VersionByteContract, contractID)
	if err != nil {
		return xdr.ScAddress{}, fmt.Errorf("invalid contract id %q: %w", contractID, err)
	}

	var hash xdr.Hash
	copy(hash[:], raw)
	return xdr.ScAddress{
		Type:       xdr.ScAddressTypeScAddressTypeContract,
		ContractId: &hash,
	}, nil
}

func amountScVal(stroops int64) xdr.ScVal {
	parts := xdr.Int128Parts{
		Hi: xdr.Int64(stroops >> 63),
		Lo: xdr.Uint64(stroops),
	}
	return xdr.ScVal{Type: xdr.ScValTypeScvI128, I128: &parts}
}

// i128ToInt64 narrows a simulation return value to a native amount.
func i128ToInt64(value xdr.ScVal) (int64, error) {
	if value.Type != xdr.ScValTypeScvI128 || value.I128 == nil {
		return 0, fmt.Errorf("unexpected return value type %v", value.Type)
	}

	hi := int64(value.I128.Hi)
	lo := uint64(value.I128.Lo)

	switch {
	case hi == 0 && lo <= math.MaxInt64:
		return int64(lo), nil
	case hi == -1 && lo > math.MaxInt64:
		return int64(lo), nil
	default:
		return 0, fmt.Errorf("return value out of range")
	}
}
