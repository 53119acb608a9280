package chain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// loanData mirrors the protocol's LoanReturnData tuple. Field names must
// match the ABI component names for abi.ConvertType.
type loanData struct {
	LoanId                   [32]byte
	LoanToken                common.Address
	CollateralToken          common.Address
	Principal                *big.Int
	Collateral               *big.Int
	InterestOwedPerDay       *big.Int
	InterestDepositRemaining *big.Int
	StartRate                *big.Int
	StartMargin              *big.Int
	MaintenanceMargin        *big.Int
	CurrentMargin            *big.Int
	MaxLoanTerm              *big.Int
	EndTimestamp             *big.Int
	MaxLiquidatable          *big.Int
	MaxSeizable              *big.Int
}

const loanDataComponents = `[
	{"name": "loanId", "type": "bytes32"},
	{"name": "loanToken", "type": "address"},
	{"name": "collateralToken", "type": "address"},
	{"name": "principal", "type": "uint256"},
	{"name": "collateral", "type": "uint256"},
	{"name": "interestOwedPerDay", "type": "uint256"},
	{"name": "interestDepositRemaining", "type": "uint256"},
	{"name": "startRate", "type": "uint256"},
	{"name": "startMargin", "type": "uint256"},
	{"name": "maintenanceMargin", "type": "uint256"},
	{"name": "currentMargin", "type": "uint256"},
	{"name": "maxLoanTerm", "type": "uint256"},
	{"name": "endTimestamp", "type": "uint256"},
	{"name": "maxLiquidatable", "type": "uint256"},
	{"name": "maxSeizable", "type": "uint256"}
]`

// Contract ABIs
var (
	protocolABI   abi.ABI
	swapABI       abi.ABI
	priceFeedsABI abi.ABI
	converterABI  abi.ABI
	erc20ABI      abi.ABI
)

func init() {
	protocolABI = mustParse("protocol", fmt.Sprintf(`[
		{
			"name": "getActiveLoans",
			"type": "function",
			"stateMutability": "view",
			"inputs": [
				{"name": "start", "type": "uint256"},
				{"name": "count", "type": "uint256"},
				{"name": "unsafeOnly", "type": "bool"}
			],
			"outputs": [{"name": "loansData", "type": "tuple[]", "components": %[1]s}]
		},
		{
			"name": "getLoan",
			"type": "function",
			"stateMutability": "view",
			"inputs": [{"name": "loanId", "type": "bytes32"}],
			"outputs": [{"name": "loanData", "type": "tuple", "components": %[1]s}]
		},
		{
			"name": "liquidate",
			"type": "function",
			"stateMutability": "payable",
			"inputs": [
				{"name": "loanId", "type": "bytes32"},
				{"name": "receiver", "type": "address"},
				{"name": "closeAmount", "type": "uint256"}
			],
			"outputs": [
				{"name": "loanCloseAmount", "type": "uint256"},
				{"name": "seizedAmount", "type": "uint256"},
				{"name": "seizedToken", "type": "address"}
			]
		},
		{
			"name": "rollover",
			"type": "function",
			"inputs": [
				{"name": "loanId", "type": "bytes32"},
				{"name": "loanDataBytes", "type": "bytes"}
			],
			"outputs": []
		},
		{
			"name": "Liquidate",
			"type": "event",
			"anonymous": false,
			"inputs": [
				{"name": "user", "type": "address", "indexed": true},
				{"name": "liquidator", "type": "address", "indexed": true},
				{"name": "loanId", "type": "bytes32", "indexed": true},
				{"name": "lender", "type": "address", "indexed": false},
				{"name": "loanToken", "type": "address", "indexed": false},
				{"name": "collateralToken", "type": "address", "indexed": false},
				{"name": "repayAmount", "type": "uint256", "indexed": false},
				{"name": "collateralWithdrawAmount", "type": "uint256", "indexed": false},
				{"name": "collateralToLoanRate", "type": "uint256", "indexed": false},
				{"name": "currentMargin", "type": "uint256", "indexed": false}
			]
		},
		{
			"name": "Rollover",
			"type": "event",
			"anonymous": false,
			"inputs": [
				{"name": "user", "type": "address", "indexed": true},
				{"name": "caller", "type": "address", "indexed": true},
				{"name": "loanId", "type": "bytes32", "indexed": true},
				{"name": "lender", "type": "address", "indexed": false},
				{"name": "loanToken", "type": "address", "indexed": false},
				{"name": "collateralToken", "type": "address", "indexed": false},
				{"name": "collateral", "type": "uint256", "indexed": false},
				{"name": "endTimestamp", "type": "uint256", "indexed": false},
				{"name": "rewardReceiver", "type": "address", "indexed": false},
				{"name": "reward", "type": "uint256", "indexed": false}
			]
		}
	]`, loanDataComponents))

	swapABI = mustParse("swap network", `[
		{
			"name": "conversionPath",
			"type": "function",
			"stateMutability": "view",
			"inputs": [
				{"name": "_sourceToken", "type": "address"},
				{"name": "_targetToken", "type": "address"}
			],
			"outputs": [{"name": "", "type": "address[]"}]
		},
		{
			"name": "rateByPath",
			"type": "function",
			"stateMutability": "view",
			"inputs": [
				{"name": "_path", "type": "address[]"},
				{"name": "_amount", "type": "uint256"}
			],
			"outputs": [{"name": "", "type": "uint256"}]
		},
		{
			"name": "convertByPath",
			"type": "function",
			"stateMutability": "payable",
			"inputs": [
				{"name": "_path", "type": "address[]"},
				{"name": "_amount", "type": "uint256"},
				{"name": "_minReturn", "type": "uint256"},
				{"name": "_beneficiary", "type": "address"},
				{"name": "_affiliateAccount", "type": "address"},
				{"name": "_affiliateFee", "type": "uint256"}
			],
			"outputs": [{"name": "", "type": "uint256"}]
		},
		{
			"name": "Conversion",
			"type": "event",
			"anonymous": false,
			"inputs": [
				{"name": "_smartToken", "type": "address", "indexed": true},
				{"name": "_fromToken", "type": "address", "indexed": true},
				{"name": "_toToken", "type": "address", "indexed": true},
				{"name": "_fromAmount", "type": "uint256", "indexed": false},
				{"name": "_toAmount", "type": "uint256", "indexed": false},
				{"name": "_trader", "type": "address", "indexed": false}
			]
		}
	]`)

	priceFeedsABI = mustParse("price feeds", `[
		{
			"name": "queryReturn",
			"type": "function",
			"stateMutability": "view",
			"inputs": [
				{"name": "sourceToken", "type": "address"},
				{"name": "destToken", "type": "address"},
				{"name": "sourceAmount", "type": "uint256"}
			],
			"outputs": [{"name": "destAmount", "type": "uint256"}]
		}
	]`)

	converterABI = mustParse("converter", `[
		{
			"name": "reserveStakedBalance",
			"type": "function",
			"stateMutability": "view",
			"inputs": [{"name": "_reserveToken", "type": "address"}],
			"outputs": [{"name": "", "type": "uint256"}]
		}
	]`)

	erc20ABI = mustParse("erc20", `[
		{
			"name": "balanceOf",
			"type": "function",
			"stateMutability": "view",
			"inputs": [{"name": "account", "type": "address"}],
			"outputs": [{"name": "", "type": "uint256"}]
		},
		{
			"name": "approve",
			"type": "function",
			"inputs": [
				{"name": "spender", "type": "address"},
				{"name": "amount", "type": "uint256"}
			],
			"outputs": [{"name": "", "type": "bool"}]
		},
		{
			"name": "allowance",
			"type": "function",
			"stateMutability": "view",
			"inputs": [
				{"name": "owner", "type": "address"},
				{"name": "spender", "type": "address"}
			],
			"outputs": [{"name": "", "type": "uint256"}]
		}
	]`)
}

func mustParse(name, def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(name + " abi parse: " + err.Error())
	}
	return parsed
}
