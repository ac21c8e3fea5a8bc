package blockchain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const projectRegistryABI = `[
  {"type":"function","name":"submitProject","stateMutability":"nonpayable","inputs":[
    {"name":"name","type":"string"},
    {"name":"location","type":"string"},
    {"name":"latitude","type":"int256"},
    {"name":"longitude","type":"int256"},
    {"name":"areaHectares","type":"uint256"},
    {"name":"ecosystemType","type":"uint8"},
    {"name":"ipfsMetadata","type":"string"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"approveProject","stateMutability":"nonpayable","inputs":[{"name":"projectId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"rejectProject","stateMutability":"nonpayable","inputs":[{"name":"projectId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"issueCredits","stateMutability":"nonpayable","inputs":[
    {"name":"projectId","type":"uint256"},
    {"name":"amount","type":"uint256"}],"outputs":[]},
  {"type":"event","name":"ProjectSubmitted","anonymous":false,"inputs":[
    {"name":"projectId","type":"uint256","indexed":true},
    {"name":"owner","type":"address","indexed":true}]},
  {"type":"event","name":"ProjectApproved","anonymous":false,"inputs":[
    {"name":"projectId","type":"uint256","indexed":true},
    {"name":"approver","type":"address","indexed":true}]},
  {"type":"event","name":"ProjectRejected","anonymous":false,"inputs":[
    {"name":"projectId","type":"uint256","indexed":true},
    {"name":"rejector","type":"address","indexed":true}]},
  {"type":"event","name":"CreditsIssued","anonymous":false,"inputs":[
    {"name":"projectId","type":"uint256","indexed":true},
    {"name":"amount","type":"uint256","indexed":false}]}
]`

const carbonCreditABI = `[
  {"type":"function","name":"mintCredit","stateMutability":"nonpayable","inputs":[
    {"name":"to","type":"address"},
    {"name":"amount","type":"uint256"},
    {"name":"projectId","type":"uint256"},
    {"name":"location","type":"string"},
    {"name":"areaHectares","type":"uint256"},
    {"name":"ecosystemType","type":"string"},
    {"name":"ipfsHash","type":"string"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"event","name":"CreditMinted","anonymous":false,"inputs":[
    {"name":"tokenId","type":"uint256","indexed":true},
    {"name":"projectId","type":"uint256","indexed":true},
    {"name":"to","type":"address","indexed":true},
    {"name":"amount","type":"uint256","indexed":false}]}
]`

const soulboundTokenABI = `[
  {"type":"function","name":"mintAchievement","stateMutability":"nonpayable","inputs":[
    {"name":"to","type":"address"},
    {"name":"title","type":"string"},
    {"name":"description","type":"string"},
    {"name":"projectId","type":"uint256"},
    {"name":"ipfsMetadata","type":"string"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"event","name":"AchievementMinted","anonymous":false,"inputs":[
    {"name":"tokenId","type":"uint256","indexed":true},
    {"name":"to","type":"address","indexed":true},
    {"name":"projectId","type":"uint256","indexed":true}]}
]`

// Event names the gateway reads entity ids from.
const (
	EventProjectSubmitted  = "ProjectSubmitted"
	EventProjectApproved   = "ProjectApproved"
	EventProjectRejected   = "ProjectRejected"
	EventCreditsIssued     = "CreditsIssued"
	EventCreditMinted      = "CreditMinted"
	EventAchievementMinted = "AchievementMinted"
)

type contractABIs struct {
	registry  abi.ABI
	credit    abi.ABI
	soulbound abi.ABI
}

func loadContractABIs() (contractABIs, error) {
	var out contractABIs
	for _, item := range []struct {
		name string
		src  string
		dst  *abi.ABI
	}{
		{"ProjectRegistry", projectRegistryABI, &out.registry},
		{"BlueCarbonCredit", carbonCreditABI, &out.credit},
		{"SoulboundToken", soulboundTokenABI, &out.soulbound},
	} {
		parsed, err := abi.JSON(strings.NewReader(item.src))
		if err != nil {
			return contractABIs{}, fmt.Errorf("parse %s abi: %w", item.name, err)
		}
		*item.dst = parsed
	}
	return out, nil
}

// EcosystemCode maps an ecosystem type to the registry's uint8 enum.
func EcosystemCode(ecosystemType string) (uint8, bool) {
	switch strings.ToUpper(strings.TrimSpace(ecosystemType)) {
	case "MANGROVE":
		return 0, true
	case "SEAGRASS":
		return 1, true
	case "SALT_MARSH":
		return 2, true
	case "KELP":
		return 3, true
	default:
		return 0, false
	}
}
