// Package matcher 规则树匹配
// 规则先编译(预编译正则)，再对大量记录重复求值
package matcher

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strings"
)

// 支持的操作符
const (
	OpEquals     = "equals"
	OpNotEquals  = "not_equals"
	OpStartsWith = "starts_with"
	OpContains   = "contains"
	OpLike       = "like"        // SQL LIKE: % 任意串，_ 单个字符，整串匹配
	OpLikePrefix = "like_prefix" // LIKE 'value%'
	OpRegex      = "regex"
	OpIn         = "in"
)

// MatchRule 定义匹配规则树
// 既可以是条件节点(Leaf)，也可以是逻辑节点(Branch)
type MatchRule struct {
	And []MatchRule `json:"and,omitempty"`
	Or  []MatchRule `json:"or,omitempty"`

	Field    string      `json:"field,omitempty"`
	Operator string      `json:"operator,omitempty"`
	Value    interface{} `json:"value,omitempty"`
}

// Record 可按字段名取值的记录，避免反射
type Record interface {
	Field(name string) (interface{}, bool)
}

// Compiled 编译后的规则，可并发使用
type Compiled struct {
	and   []*Compiled
	or    []*Compiled
	field string
	op    string
	value interface{}
	re    *regexp.Regexp
}

// ParseJSON 解析 JSON 规则字符串
func ParseJSON(jsonStr string) (MatchRule, error) {
	var rule MatchRule
	err := json.Unmarshal([]byte(jsonStr), &rule)
	return rule, err
}

// Compile 编译规则树
func Compile(rule MatchRule) (*Compiled, error) {
	c := &Compiled{field: rule.Field, op: rule.Operator, value: rule.Value}

	for _, sub := range rule.And {
		sc, err := Compile(sub)
		if err != nil {
			return nil, err
		}
		c.and = append(c.and, sc)
	}
	for _, sub := range rule.Or {
		sc, err := Compile(sub)
		if err != nil {
			return nil, err
		}
		c.or = append(c.or, sc)
	}
	if len(c.and) > 0 || len(c.or) > 0 || rule.Field == "" {
		return c, nil
	}

	switch rule.Operator {
	case OpEquals, OpNotEquals, OpStartsWith, OpContains:
	case OpLike, OpLikePrefix:
		pattern, ok := rule.Value.(string)
		if !ok {
			return nil, fmt.Errorf("like pattern must be string, field %s", rule.Field)
		}
		if rule.Operator == OpLikePrefix {
			pattern += "%"
		}
		c.re = regexp.MustCompile(LikeToRegex(pattern))
	case OpRegex:
		pattern, ok := rule.Value.(string)
		if !ok {
			return nil, fmt.Errorf("regex pattern must be string, field %s", rule.Field)
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid regex for field %s: %w", rule.Field, err)
		}
		c.re = re
	case OpIn:
		kind := reflect.ValueOf(rule.Value).Kind()
		if kind != reflect.Slice && kind != reflect.Array {
			return nil, fmt.Errorf("in expected value must be a list, field %s", rule.Field)
		}
	default:
		return nil, fmt.Errorf("unknown operator: %s", rule.Operator)
	}
	return c, nil
}

// LikeToRegex SQL LIKE 模式转为锚定的正则
func LikeToRegex(pattern string) string {
	var b strings.Builder
	b.WriteString("(?s)^")
	for _, r := range pattern {
		switch r {
		case '%':
			b.WriteString(".*")
		case '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return b.String()
}

// Match 评估数据是否符合编译后的规则，空规则匹配一切
func (c *Compiled) Match(data interface{}) bool {
	if len(c.and) > 0 {
		for _, sub := range c.and {
			if !sub.Match(data) {
				return false
			}
		}
		return true
	}
	if len(c.or) > 0 {
		for _, sub := range c.or {
			if sub.Match(data) {
				return true
			}
		}
		return false
	}
	if c.field == "" {
		return true
	}

	actual, exists := getFieldValue(data, c.field)
	if !exists {
		return false
	}
	return c.evaluate(actual)
}

// Match 编译并求值，适合一次性使用
func Match(data interface{}, rule MatchRule) (bool, error) {
	c, err := Compile(rule)
	if err != nil {
		return false, err
	}
	return c.Match(data), nil
}

func (c *Compiled) evaluate(actual interface{}) bool {
	actualStr := stringify(actual)
	switch c.op {
	case OpEquals:
		return actualStr == stringify(c.value)
	case OpNotEquals:
		return actualStr != stringify(c.value)
	case OpStartsWith:
		return strings.HasPrefix(actualStr, stringify(c.value))
	case OpContains:
		return strings.Contains(actualStr, stringify(c.value))
	case OpLike, OpLikePrefix, OpRegex:
		return c.re.MatchString(actualStr)
	case OpIn:
		list := reflect.ValueOf(c.value)
		for i := 0; i < list.Len(); i++ {
			if stringify(list.Index(i).Interface()) == actualStr {
				return true
			}
		}
		return false
	}
	return false
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case *string:
		if t == nil {
			return ""
		}
		return *t
	default:
		return fmt.Sprintf("%v", v)
	}
}

// getFieldValue 获取字段值，Record 直接取值，map/struct 支持 "a.b" 点号路径
func getFieldValue(data interface{}, fieldPath string) (interface{}, bool) {
	if rec, ok := data.(Record); ok {
		return rec.Field(fieldPath)
	}

	current := data
	for _, part := range strings.Split(fieldPath, ".") {
		if current == nil {
			return nil, false
		}
		val := reflect.Indirect(reflect.ValueOf(current))
		switch val.Kind() {
		case reflect.Map:
			keyVal := val.MapIndex(reflect.ValueOf(part))
			if !keyVal.IsValid() {
				return nil, false
			}
			current = keyVal.Interface()
		case reflect.Struct:
			fieldVal := val.FieldByName(part)
			if !fieldVal.IsValid() {
				return nil, false
			}
			current = fieldVal.Interface()
		default:
			return nil, false
		}
	}
	return current, true
}
