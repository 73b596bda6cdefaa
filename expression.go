// Copyright 2025 The DBQ Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dbqprep

import (
	"fmt"
	"time"

	"github.com/google/cel-go/cel"
)

// valueEnv declares the single variable available to expression rules.
var valueEnv, valueEnvErr = cel.NewEnv(
	cel.Variable("value", cel.DynType),
	cel.CrossTypeNumericComparisons(true),
)

func compileValueExpression(expression string) (cel.Program, error) {
	if expression == "" {
		return nil, fmt.Errorf("expression is empty")
	}
	if valueEnvErr != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", valueEnvErr)
	}

	ast, issues := valueEnv.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %w", issues.Err())
	}

	out := ast.OutputType()
	if !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("expression must evaluate to bool, got %s", out)
	}

	prog, err := valueEnv.Program(ast, cel.CostLimit(1000000))
	if err != nil {
		return nil, fmt.Errorf("program creation error: %w", err)
	}
	return prog, nil
}

// matchExpression evaluates the compiled predicate for one cell. Evaluation
// errors and non-boolean results count as a mismatch.
func matchExpression(prog cel.Program, v any) bool {
	out, _, err := prog.Eval(map[string]any{"value": celNative(v)})
	if err != nil {
		return false
	}
	matched, ok := out.Value().(bool)
	return ok && matched
}

func celNative(v any) any {
	switch val := v.(type) {
	case int:
		return int64(val)
	case int8:
		return int64(val)
	case int16:
		return int64(val)
	case int32:
		return int64(val)
	case uint:
		return uint64(val)
	case uint8:
		return uint64(val)
	case uint16:
		return uint64(val)
	case uint32:
		return uint64(val)
	case float32:
		return float64(val)
	case time.Time:
		return val.UTC()
	}
	return v
}
