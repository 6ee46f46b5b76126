package policyopa

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"custody/internal/domain"
	cryptoinfra "custody/internal/infra/crypto"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
)

const (
	uploadQuery     = "data.vault.upload.result"
	builtinPolicyID = "builtin/upload.rego"
)

//go:embed upload.rego
var builtinUploadPolicy []byte

// Engine evaluates upload requests against a prepared rego query. It is safe
// for concurrent use.
type Engine struct {
	query      rego.PreparedEvalQuery
	policyID   string
	policyHash string
}

// NewEngine prepares the built-in upload policy.
func NewEngine(ctx context.Context) (*Engine, error) {
	return newEngine(ctx, builtinPolicyID, builtinUploadPolicy)
}

// NewEngineFromPath prepares the rego module at path. The module must define
// data.vault.upload.result.
func NewEngineFromPath(ctx context.Context, path string) (*Engine, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read upload policy: %w", err)
	}
	return newEngine(ctx, filepath.Base(path), source)
}

// Load picks the policy at path, or the built-in one when path is empty.
func Load(ctx context.Context, path string) (*Engine, error) {
	if strings.TrimSpace(path) == "" {
		return NewEngine(ctx)
	}
	return NewEngineFromPath(ctx, path)
}

func newEngine(ctx context.Context, policyID string, source []byte) (*Engine, error) {
	capabilities := ast.CapabilitiesForThisVersion()
	capabilities.Builtins = filterBuiltins(capabilities.Builtins)
	compiler := ast.NewCompiler().WithCapabilities(capabilities)

	r := rego.New(
		rego.Query(uploadQuery),
		rego.Compiler(compiler),
		rego.StrictBuiltinErrors(true),
		rego.Module(policyID, string(source)),
	)
	prepared, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare upload policy: %w", err)
	}
	if err := assertNoForbiddenBuiltins(compiler); err != nil {
		return nil, err
	}
	return &Engine{
		query:      prepared,
		policyID:   policyID,
		policyHash: cryptoinfra.Digest(source),
	}, nil
}

func (e *Engine) PolicyID() string {
	return e.policyID
}

// PolicyHash is the SHA-256 of the rego source the engine was prepared from.
func (e *Engine) PolicyHash() string {
	return e.policyHash
}

func (e *Engine) Evaluate(ctx context.Context, input domain.UploadPolicyInput) (domain.PolicyEvaluation, error) {
	if e == nil {
		return domain.PolicyEvaluation{}, errors.New("policy engine is nil")
	}
	if len(input.Levels) == 0 {
		input.Levels = domain.Levels()
	}
	input.ActorClearance = input.ActorClearance.Normalize()
	input.RequestedClassification = input.RequestedClassification.Normalize()
	if input.ActorRoles == nil {
		input.ActorRoles = []string{}
	}
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return domain.PolicyEvaluation{}, err
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return domain.PolicyEvaluation{}, errors.New("empty policy result")
	}
	result, err := decodePolicyResult(results[0].Expressions[0].Value)
	if err != nil {
		return domain.PolicyEvaluation{}, err
	}
	normalizePolicyResult(&result)
	return domain.PolicyEvaluation{
		PolicyID:   e.policyID,
		PolicyHash: e.policyHash,
		Result:     result,
	}, nil
}

func decodePolicyResult(value any) (domain.PolicyResult, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return domain.PolicyResult{}, err
	}
	var result domain.PolicyResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return domain.PolicyResult{}, err
	}
	return result, nil
}

// normalizePolicyResult orders denials and never lets a result allow while
// carrying a denial.
func normalizePolicyResult(result *domain.PolicyResult) {
	if result == nil {
		return
	}
	sort.Slice(result.Deny, func(i, j int) bool {
		if result.Deny[i].Code == result.Deny[j].Code {
			return result.Deny[i].Message < result.Deny[j].Message
		}
		return result.Deny[i].Code < result.Deny[j].Code
	})
	if len(result.Deny) > 0 {
		result.Allow = false
	}
}

func assertNoForbiddenBuiltins(compiler *ast.Compiler) error {
	if compiler == nil {
		return errors.New("policy compiler is nil")
	}
	forbidden := make(map[string]struct{})
	for _, module := range compiler.Modules {
		ast.WalkTerms(module, func(term *ast.Term) bool {
			call, ok := term.Value.(ast.Call)
			if !ok || len(call) == 0 || call[0] == nil {
				return false
			}
			name := call[0].Value.String()
			if _, ok := ast.BuiltinMap[name]; !ok {
				return false
			}
			if _, ok := allowedBuiltins[name]; ok {
				return false
			}
			forbidden[name] = struct{}{}
			return false
		})
	}
	if len(forbidden) == 0 {
		return nil
	}
	names := make([]string, 0, len(forbidden))
	for name := range forbidden {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Errorf("forbidden builtins: %s", strings.Join(names, ", "))
}
