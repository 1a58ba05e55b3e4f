package evm

import (
	"fmt"
	"math/big"
	"reflect"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var transferEventSignature = gethcrypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
var stakedEventSignature = gethcrypto.Keccak256Hash([]byte("Staked(address,uint256)"))

var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

const erc20JSON = `[
{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"totalSupply","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]}
]`

// The stable pool ABI is parameterized by coin count: Curve takes fixed-size arrays.
const stablePoolJSON = `[
{"type":"function","name":"add_liquidity","stateMutability":"nonpayable","inputs":[{"name":"amounts","type":"uint256[%[1]d]"},{"name":"min_mint_amount","type":"uint256"}],"outputs":[]},
{"type":"function","name":"remove_liquidity","stateMutability":"nonpayable","inputs":[{"name":"_amount","type":"uint256"},{"name":"min_amounts","type":"uint256[%[1]d]"}],"outputs":[]},
{"type":"function","name":"remove_liquidity_one_coin","stateMutability":"nonpayable","inputs":[{"name":"_token_amount","type":"uint256"},{"name":"i","type":"int128"},{"name":"min_amount","type":"uint256"}],"outputs":[]},
{"type":"function","name":"calc_withdraw_one_coin","stateMutability":"view","inputs":[{"name":"_token_amount","type":"uint256"},{"name":"i","type":"int128"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"exchange","stateMutability":"nonpayable","inputs":[{"name":"i","type":"int128"},{"name":"j","type":"int128"},{"name":"dx","type":"uint256"},{"name":"min_dy","type":"uint256"}],"outputs":[]},
{"type":"function","name":"get_dy","stateMutability":"view","inputs":[{"name":"i","type":"int128"},{"name":"j","type":"int128"},{"name":"dx","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]}
]`

const cryptoPoolJSON = `[
{"type":"function","name":"exchange","stateMutability":"payable","inputs":[{"name":"i","type":"uint256"},{"name":"j","type":"uint256"},{"name":"dx","type":"uint256"},{"name":"min_dy","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"get_dy","stateMutability":"view","inputs":[{"name":"i","type":"uint256"},{"name":"j","type":"uint256"},{"name":"dx","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]}
]`

const boosterJSON = `[
{"type":"function","name":"deposit","stateMutability":"nonpayable","inputs":[{"name":"_pid","type":"uint256"},{"name":"_amount","type":"uint256"},{"name":"_stake","type":"bool"}],"outputs":[{"name":"","type":"bool"}]},
{"type":"function","name":"withdraw","stateMutability":"nonpayable","inputs":[{"name":"_pid","type":"uint256"},{"name":"_amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

const rewardPoolJSON = `[
{"type":"function","name":"stake","stateMutability":"nonpayable","inputs":[{"name":"_amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
{"type":"function","name":"withdraw","stateMutability":"nonpayable","inputs":[{"name":"amount","type":"uint256"},{"name":"claim","type":"bool"}],"outputs":[{"name":"","type":"bool"}]},
{"type":"function","name":"getReward","stateMutability":"nonpayable","inputs":[{"name":"_account","type":"address"},{"name":"_claimExtras","type":"bool"}],"outputs":[{"name":"","type":"bool"}]},
{"type":"function","name":"earned","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

const uniswapV2RouterJSON = `[
{"type":"function","name":"swapExactTokensForTokens","stateMutability":"nonpayable","inputs":[{"name":"amountIn","type":"uint256"},{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"outputs":[{"name":"amounts","type":"uint256[]"}]},
{"type":"function","name":"getAmountsOut","stateMutability":"view","inputs":[{"name":"amountIn","type":"uint256"},{"name":"path","type":"address[]"}],"outputs":[{"name":"amounts","type":"uint256[]"}]}
]`

var (
	erc20ABI      = mustParse(erc20JSON)
	cryptoPoolABI = mustParse(cryptoPoolJSON)
	boosterABI    = mustParse(boosterJSON)
	rewardPoolABI = mustParse(rewardPoolJSON)
	routerABI     = mustParse(uniswapV2RouterJSON)
)

func mustParse(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("invalid contract ABI: %v", err))
	}
	return parsed
}

func stablePoolABI(coins int) (abi.ABI, error) {
	return abi.JSON(strings.NewReader(fmt.Sprintf(stablePoolJSON, coins)))
}

// fixedArray converts amounts to a [N]*big.Int value for packing uint256[N].
func fixedArray(vals []*big.Int) any {
	arr := reflect.New(reflect.ArrayOf(len(vals), reflect.TypeOf((*big.Int)(nil)))).Elem()
	for i, v := range vals {
		arr.Index(i).Set(reflect.ValueOf(v))
	}
	return arr.Interface()
}

func unpackUint(parsed abi.ABI, method string, data []byte) (*big.Int, error) {
	out, err := parsed.Unpack(method, data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("unpack %s: empty result", method)
	}
	v, ok := out[0].(*big.Int)
	if !ok || v == nil {
		return nil, fmt.Errorf("unpack %s: unexpected type %T", method, out[0])
	}
	return v, nil
}

func unpackUintSlice(parsed abi.ABI, method string, data []byte) ([]*big.Int, error) {
	out, err := parsed.Unpack(method, data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("unpack %s: empty result", method)
	}
	v, ok := out[0].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("unpack %s: unexpected type %T", method, out[0])
	}
	return v, nil
}
