package blockchain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"greentoken/internal/domain"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

var refPattern = regexp.MustCompile(`^0x[0-9a-f]{64}$`)

const (
	registryAddr = "0x4444444444444444444444444444444444444444"
	creditAddr   = "0x2222222222222222222222222222222222222222"
	recipient    = "0x1111111111111111111111111111111111111111"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeRPC struct {
	mu sync.Mutex

	chainID  *big.Int
	chainErr error
	calls    int

	sent          []*types.Transaction
	sendErr       error
	estimateErr   error
	receiptStatus uint64
	receiptLogs   []*types.Log
	receiptErr    error
	head          uint64

	tx      *types.Transaction
	pending bool
	txErr   error

	callOut []byte
}

func newFakeRPC() *fakeRPC {
	return &fakeRPC{chainID: big.NewInt(31337), receiptStatus: types.ReceiptStatusSuccessful, head: 10}
}

func (f *fakeRPC) count() {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
}

func (f *fakeRPC) ChainID(ctx context.Context) (*big.Int, error) {
	f.count()
	return f.chainID, f.chainErr
}

func (f *fakeRPC) BlockNumber(ctx context.Context) (uint64, error) {
	f.count()
	return f.head, nil
}

func (f *fakeRPC) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	f.count()
	f.mu.Lock()
	defer f.mu.Unlock()
	return uint64(len(f.sent)), nil
}

func (f *fakeRPC) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	f.count()
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeRPC) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	f.count()
	return 100_000, f.estimateErr
}

func (f *fakeRPC) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	f.count()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.mu.Lock()
	f.sent = append(f.sent, tx)
	f.mu.Unlock()
	return nil
}

func (f *fakeRPC) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	f.count()
	if f.txErr != nil {
		return nil, false, f.txErr
	}
	if f.tx == nil {
		return nil, false, ethereum.NotFound
	}
	return f.tx, f.pending, nil
}

func (f *fakeRPC) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	f.count()
	if f.receiptErr != nil {
		return nil, f.receiptErr
	}
	return &types.Receipt{
		Status:      f.receiptStatus,
		Logs:        f.receiptLogs,
		TxHash:      hash,
		BlockNumber: big.NewInt(10),
	}, nil
}

func (f *fakeRPC) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	f.count()
	return f.callOut, nil
}

func (f *fakeRPC) Close() {}

func testKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}

func newProductionGateway(t *testing.T, rpc *fakeRPC, cfg Config) *Gateway {
	t.Helper()
	if cfg.OperatorKey == nil {
		cfg.OperatorKey = testKey(t)
	}
	if cfg.RegistryAddress == "" {
		cfg.RegistryAddress = registryAddr
	}
	cfg.PollInterval = time.Millisecond
	gw, err := NewProduction(context.Background(), rpc, cfg, quietLogger())
	if err != nil {
		t.Fatalf("new production gateway: %v", err)
	}
	return gw
}

func mustABIs(t *testing.T) contractABIs {
	t.Helper()
	abis, err := loadContractABIs()
	if err != nil {
		t.Fatalf("load abis: %v", err)
	}
	return abis
}

func entityLog(t *testing.T, abis contractABIs, name string, id int64) *types.Log {
	t.Helper()
	event, ok := abis.registry.Events[name]
	if !ok {
		t.Fatalf("unknown registry event %s", name)
	}
	return &types.Log{Topics: []common.Hash{event.ID, common.BigToHash(big.NewInt(id))}}
}

func testSubmission() domain.ProjectSubmission {
	return domain.ProjectSubmission{
		Name:          "Test Mangrove",
		Location:      "Pichavaram",
		Latitude:      11.4333,
		Longitude:     79.7833,
		AreaHectares:  10,
		EcosystemType: "MANGROVE",
		DataHash:      "ab12",
	}
}

func TestMockGatewayWithoutConfiguration(t *testing.T) {
	gw := New(context.Background(), Config{RPCURL: "http://127.0.0.1:1"}, quietLogger())
	if gw.Mode() != domain.LedgerModeMock {
		t.Fatalf("expected mock mode, got %s", gw.Mode())
	}

	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		res, err := gw.SubmitProject(context.Background(), testSubmission())
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		if !refPattern.MatchString(res.TransactionReference) {
			t.Fatalf("unexpected reference %q", res.TransactionReference)
		}
		if res.LedgerEntityID < 1 || res.LedgerEntityID > mockEntityIDMax {
			t.Fatalf("entity id out of range: %d", res.LedgerEntityID)
		}
		if res.Mode != domain.LedgerModeMock {
			t.Fatalf("unexpected mode %s", res.Mode)
		}
		if _, dup := seen[res.TransactionReference]; dup {
			t.Fatal("duplicate mock reference")
		}
		seen[res.TransactionReference] = struct{}{}
	}
}

func TestMockGatewayOperations(t *testing.T) {
	gw := NewMock(quietLogger())
	ctx := context.Background()

	ref, err := gw.ApproveProject(ctx, 5)
	if err != nil || !refPattern.MatchString(ref) {
		t.Fatalf("approve: %q %v", ref, err)
	}
	ref, err = gw.RejectProject(ctx, 5)
	if err != nil || !refPattern.MatchString(ref) {
		t.Fatalf("reject: %q %v", ref, err)
	}
	res, err := gw.IssueCredits(ctx, 5, 100, recipient, domain.CreditMetadata{})
	if err != nil || res.Amount.Uint64() != 100 || res.Recipient != recipient {
		t.Fatalf("issue: %+v %v", res, err)
	}
	if _, err := gw.MintAchievement(ctx, domain.AchievementMint{Recipient: recipient, Title: "First Project"}); err != nil {
		t.Fatalf("mint: %v", err)
	}
	balance, err := gw.TokenBalance(ctx, recipient)
	if err != nil || balance != "100.0" {
		t.Fatalf("balance: %q %v", balance, err)
	}

	status, err := gw.ReadTransaction(ctx, res.TransactionReference)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !status.Confirmed || !status.Simulated || status.Value != nil {
		t.Fatalf("unexpected mock status %+v", status)
	}
	if _, err := gw.ReadTransaction(ctx, "0x1234"); !domain.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestProductionBlocker(t *testing.T) {
	key := testKey(t)
	cases := []struct {
		name    string
		cfg     Config
		blocked bool
	}{
		{"complete", Config{RPCURL: "http://node", OperatorKey: key, RegistryAddress: registryAddr}, false},
		{"no rpc", Config{OperatorKey: key, RegistryAddress: registryAddr}, true},
		{"no key", Config{RPCURL: "http://node", RegistryAddress: registryAddr}, true},
		{"no contracts", Config{RPCURL: "http://node", OperatorKey: key}, true},
		{"bad contract", Config{RPCURL: "http://node", OperatorKey: key, CreditAddress: "0xnope"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := productionBlocker(tc.cfg) != ""; got != tc.blocked {
				t.Fatalf("blocked = %v, want %v", got, tc.blocked)
			}
		})
	}
}

func TestNewProductionChainChecks(t *testing.T) {
	rpc := newFakeRPC()
	rpc.chainErr = errors.New("connection refused")
	if _, err := NewProduction(context.Background(), rpc, Config{OperatorKey: testKey(t)}, quietLogger()); err == nil {
		t.Fatal("expected unreachable node to fail")
	}

	rpc = newFakeRPC()
	if _, err := NewProduction(context.Background(), rpc, Config{OperatorKey: testKey(t), ChainID: 1}, quietLogger()); err == nil {
		t.Fatal("expected chain id mismatch to fail")
	}
}

func TestProductionSubmitProject(t *testing.T) {
	abis := mustABIs(t)
	rpc := newFakeRPC()
	rpc.receiptLogs = []*types.Log{entityLog(t, abis, EventProjectSubmitted, 42)}
	gw := newProductionGateway(t, rpc, Config{})

	res, err := gw.SubmitProject(context.Background(), testSubmission())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(rpc.sent) != 1 {
		t.Fatalf("expected one transaction, got %d", len(rpc.sent))
	}
	if res.LedgerEntityID != 42 || res.Mode != domain.LedgerModeProduction {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.TransactionReference != rpc.sent[0].Hash().Hex() {
		t.Fatalf("reference %s does not match sent tx %s", res.TransactionReference, rpc.sent[0].Hash().Hex())
	}

	data := rpc.sent[0].Data()
	method := abis.registry.Methods["submitProject"]
	if string(data[:4]) != string(method.ID) {
		t.Fatal("unexpected method selector")
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if lat := args[2].(*big.Int); lat.Int64() != 11433300 {
		t.Fatalf("unexpected scaled latitude %s", lat)
	}
	if area := args[4].(*big.Int); area.Int64() != 1000 {
		t.Fatalf("unexpected scaled area %s", area)
	}
	if eco := args[5].(uint8); eco != 0 {
		t.Fatalf("unexpected ecosystem code %d", eco)
	}
	if meta := args[6].(string); meta != "ab12" {
		t.Fatalf("expected data hash as metadata, got %q", meta)
	}
}

func TestProductionMissingEventYieldsZeroID(t *testing.T) {
	gw := newProductionGateway(t, newFakeRPC(), Config{})
	res, err := gw.SubmitProject(context.Background(), testSubmission())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.LedgerEntityID != 0 || res.TransactionReference == "" {
		t.Fatalf("expected reference without entity id, got %+v", res)
	}
}

func TestProductionRevertedTransaction(t *testing.T) {
	rpc := newFakeRPC()
	rpc.receiptStatus = types.ReceiptStatusFailed
	gw := newProductionGateway(t, rpc, Config{})

	_, err := gw.ApproveProject(context.Background(), 9)
	var subErr *domain.LedgerSubmissionError
	if !errors.As(err, &subErr) {
		t.Fatalf("expected ledger submission error, got %v", err)
	}
	if subErr.Code != domain.AnchorErrorReverted || subErr.TxRef == "" {
		t.Fatalf("unexpected error %+v", subErr)
	}
}

func TestProductionSendFailure(t *testing.T) {
	rpc := newFakeRPC()
	rpc.sendErr = errors.New("connection reset")
	gw := newProductionGateway(t, rpc, Config{})

	res, err := gw.SubmitProject(context.Background(), testSubmission())
	var subErr *domain.LedgerSubmissionError
	if !errors.As(err, &subErr) || subErr.Code != domain.AnchorErrorNetwork {
		t.Fatalf("expected network submission error, got %v", err)
	}
	if res.Anchored() || res.TransactionReference != "" {
		t.Fatalf("expected pending-anchor result, got %+v", res)
	}
}

func TestProductionConfirmationTimeoutIsIndeterminate(t *testing.T) {
	rpc := newFakeRPC()
	rpc.receiptErr = ethereum.NotFound
	gw := newProductionGateway(t, rpc, Config{ConfirmTimeout: 30 * time.Millisecond})

	res, err := gw.SubmitProject(context.Background(), testSubmission())
	if !errors.Is(err, domain.ErrIndeterminate) {
		t.Fatalf("expected indeterminate, got %v", err)
	}
	if !domain.IsLedgerSubmission(err) {
		t.Fatal("expected ledger submission error wrapper")
	}
	if res.TransactionReference == "" {
		t.Fatal("expected reference of the broadcast transaction")
	}
	if len(rpc.sent) != 1 {
		t.Fatalf("timed out write must not be resubmitted, sent %d", len(rpc.sent))
	}
}

func TestProductionDecisionRequiresEntity(t *testing.T) {
	rpc := newFakeRPC()
	gw := newProductionGateway(t, rpc, Config{})
	_, err := gw.RejectProject(context.Background(), 0)
	var subErr *domain.LedgerSubmissionError
	if !errors.As(err, &subErr) || subErr.Code != domain.AnchorErrorUnanchored {
		t.Fatalf("expected unanchored error, got %v", err)
	}
	if len(rpc.sent) != 0 {
		t.Fatal("nothing should be sent for an unanchored project")
	}
}

func TestProductionIssueCreditsOnToken(t *testing.T) {
	abis := mustABIs(t)
	event := abis.credit.Events[EventCreditMinted]
	amount, err := event.Inputs.NonIndexed().Pack(big.NewInt(25))
	if err != nil {
		t.Fatalf("pack amount: %v", err)
	}
	rpc := newFakeRPC()
	rpc.receiptLogs = []*types.Log{{
		Topics: []common.Hash{event.ID, common.BigToHash(big.NewInt(7)), common.BigToHash(big.NewInt(42)), common.HexToHash(recipient)},
		Data:   amount,
	}}
	gw := newProductionGateway(t, rpc, Config{CreditAddress: creditAddr})

	res, err := gw.IssueCredits(context.Background(), 42, 25, recipient, domain.CreditMetadata{EcosystemType: "MANGROVE", AreaHectares: 10})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if res.LedgerEntityID != 7 || res.Amount == nil || res.Amount.Int64() != 25 {
		t.Fatalf("unexpected result %+v", res)
	}
	if to := rpc.sent[0].To(); to == nil || *to != common.HexToAddress(creditAddr) {
		t.Fatal("expected mint on the credit token contract")
	}

	if _, err := gw.IssueCredits(context.Background(), 42, 25, "nope", domain.CreditMetadata{}); !domain.IsValidation(err) {
		t.Fatalf("expected validation error for bad recipient, got %v", err)
	}
}

func TestProductionMintWithoutSoulboundAddress(t *testing.T) {
	gw := newProductionGateway(t, newFakeRPC(), Config{})
	_, err := gw.MintAchievement(context.Background(), domain.AchievementMint{Recipient: recipient, Title: "First"})
	var subErr *domain.LedgerSubmissionError
	if !errors.As(err, &subErr) || subErr.Code != domain.AnchorErrorBadConfig {
		t.Fatalf("expected bad config error, got %v", err)
	}
}

func TestProductionReadTransaction(t *testing.T) {
	sender := testKey(t)
	signer := types.LatestSignerForChainID(big.NewInt(31337))
	to := common.HexToAddress(recipient)
	value, _ := new(big.Int).SetString("1500000000000000000", 10)
	tx, err := types.SignTx(types.NewTx(&types.LegacyTx{Nonce: 1, GasPrice: big.NewInt(1), Gas: 21000, To: &to, Value: value}), signer, sender)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	rpc := newFakeRPC()
	rpc.tx = tx
	rpc.head = 12
	gw := newProductionGateway(t, rpc, Config{MinConfirmations: 3})

	status, err := gw.ReadTransaction(context.Background(), tx.Hash().Hex())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !status.Confirmed || status.BlockNumber != 10 || status.Simulated {
		t.Fatalf("unexpected status %+v", status)
	}
	if status.From != crypto.PubkeyToAddress(sender.PublicKey).Hex() || status.To != to.Hex() {
		t.Fatalf("unexpected parties %s -> %s", status.From, status.To)
	}
	if WeiToEther(status.Value).String() != "1.5" {
		t.Fatalf("unexpected value %s", WeiToEther(status.Value))
	}

	rpc.head = 11
	status, err = gw.ReadTransaction(context.Background(), tx.Hash().Hex())
	if err != nil || status.Confirmed {
		t.Fatalf("expected unconfirmed below threshold, got %+v %v", status, err)
	}

	rpc.pending = true
	status, err = gw.ReadTransaction(context.Background(), tx.Hash().Hex())
	if err != nil || status.Confirmed {
		t.Fatalf("expected pending to be unconfirmed, got %+v %v", status, err)
	}
}

func TestProductionReadTransactionErrors(t *testing.T) {
	rpc := newFakeRPC()
	rpc.txErr = errors.New("dial tcp: connection refused")
	gw := newProductionGateway(t, rpc, Config{})
	ref := "0x" + strings.Repeat("ab", 32)

	if _, err := gw.ReadTransaction(context.Background(), ref); err == nil || domain.IsValidation(err) {
		t.Fatalf("expected transport error, got %v", err)
	}

	rpc.txErr = nil
	status, err := gw.ReadTransaction(context.Background(), ref)
	if err != nil || status.Confirmed {
		t.Fatalf("unknown transaction should be unconfirmed, got %+v %v", status, err)
	}

	before := rpc.calls
	if _, err := gw.ReadTransaction(context.Background(), "not-a-hash"); !domain.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if rpc.calls != before {
		t.Fatal("malformed reference must not reach the node")
	}
}

func TestProductionTokenBalance(t *testing.T) {
	abis := mustABIs(t)
	out, err := abis.credit.Methods["balanceOf"].Outputs.Pack(new(big.Int).Mul(big.NewInt(42), big.NewInt(1e18)))
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	rpc := newFakeRPC()
	rpc.callOut = out
	gw := newProductionGateway(t, rpc, Config{CreditAddress: creditAddr})
	balance, err := gw.TokenBalance(context.Background(), recipient)
	if err != nil || balance != "42" {
		t.Fatalf("balance: %q %v", balance, err)
	}
}

func TestExtractEntityID(t *testing.T) {
	abis := mustABIs(t)
	submitted := abis.registry.Events[EventProjectSubmitted].ID
	approved := abis.registry.Events[EventProjectApproved].ID
	cases := []struct {
		name   string
		logs   []*types.Log
		want   uint64
		wantOK bool
	}{
		{"no logs", nil, 0, false},
		{"nil log", []*types.Log{nil}, 0, false},
		{"other event", []*types.Log{{Topics: []common.Hash{approved, common.BigToHash(big.NewInt(3))}}}, 0, false},
		{"missing id topic", []*types.Log{{Topics: []common.Hash{submitted}}}, 0, false},
		{"match after others", []*types.Log{
			{Topics: []common.Hash{approved, common.BigToHash(big.NewInt(3))}},
			{Topics: []common.Hash{submitted, common.BigToHash(big.NewInt(17))}},
		}, 17, true},
		{"too wide", []*types.Log{{Topics: []common.Hash{submitted, common.HexToHash("0x010000000000000000")}}}, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ExtractEntityID(tc.logs, abis.registry, EventProjectSubmitted)
			if got != tc.want || ok != tc.wantOK {
				t.Fatalf("got (%d, %v), want (%d, %v)", got, ok, tc.want, tc.wantOK)
			}
		})
	}
	if _, ok := ExtractEntityID(nil, abis.registry, "NoSuchEvent"); ok {
		t.Fatal("unknown event must not match")
	}
}

func TestEcosystemCode(t *testing.T) {
	for name, want := range map[string]uint8{"MANGROVE": 0, "seagrass": 1, "SALT_MARSH": 2, " Kelp ": 3} {
		got, ok := EcosystemCode(name)
		if !ok || got != want {
			t.Fatalf("%s: got (%d, %v), want %d", name, got, ok, want)
		}
	}
	if _, ok := EcosystemCode("TUNDRA"); ok {
		t.Fatal("unknown ecosystem must not map")
	}
}
