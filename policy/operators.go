package policy

import (
	"fmt"
	"reflect"
	"slices"
)

type Operator func(ctx RequestContext, args []any) (EvalResult, error)

var operators = make(map[string]Operator)

func init() {
	operators["And"] = opAnd
	operators["Or"] = opOr
	operators["Not"] = opNot
	operators["Eq"] = opEq
	operators["Contains"] = opContains
	operators["In"] = opIn
	operators["NotEmpty"] = opNotEmpty
	operators["Load"] = opLoad
	operators["IsOwner"] = opIsOwner
	operators["IsAdmin"] = opIsAdmin
}

func opAnd(ctx RequestContext, args []any) (EvalResult, error) {

	for i, arg := range args {
		evaluated, ok := arg.(bool)
		if !ok {
			err := fmt.Errorf("bad argument type for AND at index %d. Expected bool but got %s", i, reflect.TypeOf(arg))
			return EvalResult{
				Operator: "And",
				Error:    err.Error(),
			}, err
		}

		if !evaluated {
			return EvalResult{
				Operator: "And",
				Result:   false,
			}, nil
		}
	}

	return EvalResult{
		Operator: "And",
		Result:   true,
	}, nil
}

func opOr(ctx RequestContext, args []any) (EvalResult, error) {
	for i, arg := range args {
		evaluated, ok := arg.(bool)
		if !ok {
			err := fmt.Errorf("bad argument type for OR at index %d. Expected bool but got %s", i, reflect.TypeOf(arg))
			return EvalResult{
				Operator: "Or",
				Error:    err.Error(),
			}, err
		}

		if evaluated {
			return EvalResult{
				Operator: "Or",
				Result:   true,
			}, nil
		}
	}

	return EvalResult{
		Operator: "Or",
		Result:   false,
	}, nil
}

func opNot(ctx RequestContext, args []any) (EvalResult, error) {
	if len(args) != 1 {
		err := fmt.Errorf("bad argument length for NOT. Expected 1 but got %d", len(args))
		return EvalResult{
			Operator: "Not",
			Error:    err.Error(),
		}, err
	}

	evaluated, ok := args[0].(bool)
	if !ok {
		err := fmt.Errorf("bad argument type for NOT. Expected bool but got %s", reflect.TypeOf(args[0]))
		return EvalResult{
			Operator: "Not",
			Error:    err.Error(),
		}, err
	}

	return EvalResult{
		Operator: "Not",
		Result:   !evaluated,
	}, nil
}

func opEq(ctx RequestContext, args []any) (EvalResult, error) {
	if len(args) != 2 {
		err := fmt.Errorf("bad argument length for EQ. Expected 2 but got %d", len(args))
		return EvalResult{
			Operator: "Eq",
			Error:    err.Error(),
		}, err
	}

	return EvalResult{
		Operator: "Eq",
		Result:   reflect.DeepEqual(args[0], args[1]),
	}, nil
}

func opContains(ctx RequestContext, args []any) (EvalResult, error) {
	if len(args) != 2 {
		err := fmt.Errorf("bad argument length for CONTAINS. Expected 2 but got %d", len(args))
		return EvalResult{
			Operator: "Contains",
			Error:    err.Error(),
		}, err
	}

	arg0, ok := args[0].([]any)
	if !ok {
		err := fmt.Errorf("bad argument type for CONTAINS. Expected []any but got %s", reflect.TypeOf(args[0]))
		return EvalResult{
			Operator: "Contains",
			Error:    err.Error(),
		}, err
	}

	arg1 := args[1]

	return EvalResult{
		Operator: "Contains",
		Result:   slices.Contains(arg0, arg1),
	}, nil

}

func opLoad(ctx RequestContext, args []any) (EvalResult, error) {
	if len(args) != 1 {
		err := fmt.Errorf("bad argument length for Load. Expected 1 but got %d", len(args))
		return EvalResult{
			Operator: "Load",
			Error:    err.Error(),
		}, err
	}

	key, ok := args[0].(string)
	if !ok {
		err := fmt.Errorf("bad argument type for Load. Expected string but got %s", reflect.TypeOf(args[0]))
		return EvalResult{
			Operator: "Load",
			Error:    err.Error(),
		}, err
	}

	value, ok := ctx.Lookup(key)
	if !ok {
		err := fmt.Errorf("key not found: %s", key)
		return EvalResult{
			Operator: "Load",
			Error:    err.Error(),
		}, err
	}

	return EvalResult{
		Operator: "Load",
		Result:   value,
	}, nil
}

// opIn is Contains with the needle first: In(x, [a, b]).
func opIn(ctx RequestContext, args []any) (EvalResult, error) {
	if len(args) != 2 {
		err := fmt.Errorf("bad argument length for IN. Expected 2 but got %d", len(args))
		return EvalResult{
			Operator: "In",
			Error:    err.Error(),
		}, err
	}

	result, err := opContains(ctx, []any{args[1], args[0]})
	result.Operator = "In"
	return result, err
}

func opNotEmpty(ctx RequestContext, args []any) (EvalResult, error) {
	if len(args) != 1 {
		err := fmt.Errorf("bad argument length for NotEmpty. Expected 1 but got %d", len(args))
		return EvalResult{
			Operator: "NotEmpty",
			Error:    err.Error(),
		}, err
	}

	var empty bool
	switch v := args[0].(type) {
	case nil:
		empty = true
	case string:
		empty = v == ""
	case []any:
		empty = len(v) == 0
	}

	return EvalResult{
		Operator: "NotEmpty",
		Result:   !empty,
	}, nil
}

// opIsOwner holds when an identified requester created the target row.
func opIsOwner(ctx RequestContext, args []any) (EvalResult, error) {
	id, _ := ctx.Requester["id"].(string)
	owner, _ := ctx.This["owner"].(string)
	return EvalResult{
		Operator: "IsOwner",
		Result:   id != "" && id == owner,
	}, nil
}

func opIsAdmin(ctx RequestContext, args []any) (EvalResult, error) {
	id, _ := ctx.Requester["id"].(string)
	role, _ := ctx.Requester["role"].(string)
	return EvalResult{
		Operator: "IsAdmin",
		Result:   id != "" && role == "admin",
	}, nil
}
