package escrow

import (
	"github.com/holiman/uint256"

	"github.com/minted-network/escrow_layer/internal/app/domain/token"
)

// Split divides a sale price into the creator royalty and the seller
// proceeds. The royalty is floor(amount * num / den), computed in 256-bit
// arithmetic so the intermediate product cannot overflow. The two parts
// always sum to the price exactly.
func Split(price token.Coin, rate token.Rate) (royalty, seller uint64, err error) {
	if !rate.Valid() {
		return 0, 0, ErrInvalidRoyaltyRate
	}

	product := new(uint256.Int).Mul(
		uint256.NewInt(price.Amount),
		uint256.NewInt(rate.Num),
	)
	quotient := new(uint256.Int).Div(product, uint256.NewInt(rate.Den))

	// Unreachable for a valid rate, but guarded rather than assumed.
	if !quotient.IsUint64() || quotient.Uint64() > price.Amount {
		return 0, 0, ErrRoyaltyExceedsPrice
	}

	royalty = quotient.Uint64()
	return royalty, price.Amount - royalty, nil
}
