// Package access holds the authorization policy consulted by the services before
// any store read or mutation that depends on who is asking.
package access

import (
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/pkg/errors"

	"github.com/trezcool/foundi/core"
	"github.com/trezcool/foundi/core/user"
)

// Objects
const (
	ObjUser         = "user"
	ObjProfile      = "profile"
	ObjPayment      = "payment"
	ObjCourse       = "course"
	ObjPlanning     = "planning"
	ObjMessage      = "message"
	ObjConversation = "conversation"
	ObjUsage        = "usage"
)

// Actions
const (
	ActRead   = "read"
	ActWrite  = "write"
	ActCreate = "create"
	ActEdit   = "edit"
	ActDelete = "delete"
)

// Conditions
const (
	condAny         = "any"
	condOwner       = "owner"       // request owner == subject id
	condParticipant = "participant" // subject id is one side of the pair key
)

const modelText = `
[request_definition]
r = sub, uid, obj, act, owner

[policy_definition]
p = sub, obj, act, cond

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && r.obj == p.obj && r.act == p.act && (p.cond == "any" || (p.cond == "owner" && r.uid == r.owner) || (p.cond == "participant" && isParticipant(r.uid, r.owner)))
`

var rules = [][]string{
	{user.RoleAdmin, ObjUser, ActRead, condAny},
	{user.RoleAdmin, ObjUser, ActWrite, condAny},
	{user.RoleAdmin, ObjProfile, ActRead, condOwner},
	{user.RoleAdmin, ObjProfile, ActWrite, condOwner},
	{user.RoleStudent, ObjProfile, ActRead, condOwner},
	{user.RoleStudent, ObjProfile, ActWrite, condOwner},

	{user.RoleAdmin, ObjPayment, ActRead, condAny},
	{user.RoleAdmin, ObjPayment, ActWrite, condAny},
	{user.RoleStudent, ObjPayment, ActRead, condOwner},

	{user.RoleAdmin, ObjCourse, ActRead, condAny},
	{user.RoleAdmin, ObjCourse, ActWrite, condAny},
	{user.RoleStudent, ObjCourse, ActRead, condAny},

	{user.RoleAdmin, ObjPlanning, ActRead, condAny},
	{user.RoleAdmin, ObjPlanning, ActWrite, condAny},
	{user.RoleStudent, ObjPlanning, ActRead, condAny},

	{user.RoleAdmin, ObjMessage, ActCreate, condAny},
	{user.RoleStudent, ObjMessage, ActCreate, condAny},
	{user.RoleAdmin, ObjMessage, ActEdit, condOwner},
	{user.RoleStudent, ObjMessage, ActEdit, condOwner},
	{user.RoleAdmin, ObjMessage, ActDelete, condOwner},
	{user.RoleStudent, ObjMessage, ActDelete, condOwner},

	{user.RoleAdmin, ObjConversation, ActRead, condParticipant},
	{user.RoleStudent, ObjConversation, ActRead, condParticipant},

	{user.RoleAdmin, ObjUsage, ActRead, condAny},
}

// PairSeparator joins the two sorted participant IDs of a private conversation.
const PairSeparator = "_"

type Policy struct {
	enforcer *casbin.SyncedEnforcer
}

func NewPolicy() (*Policy, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, errors.Wrap(err, "loading access model")
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, errors.Wrap(err, "creating enforcer")
	}
	enforcer.AddFunction("isParticipant", isParticipantFunc)
	if _, err = enforcer.AddPolicies(rules); err != nil {
		return nil, errors.Wrap(err, "adding policies")
	}
	return &Policy{enforcer: enforcer}, nil
}

// MustNewPolicy is NewPolicy for wiring code and tests.
func MustNewPolicy() *Policy {
	p, err := NewPolicy()
	if err != nil {
		panic(err)
	}
	return p
}

// Can reports whether actor may perform act on obj. owner is the ID of the user owning
// the object (or the pair key of a conversation) when the rule depends on it.
// Only active accounts are granted anything.
func (p *Policy) Can(actor user.User, obj, act string, owner ...string) bool {
	if actor.ID == "" || !actor.IsActive() {
		return false
	}
	var own string
	if len(owner) > 0 {
		own = owner[0]
	}
	ok, err := p.enforcer.Enforce(actor.Role, actor.ID, obj, act, own)
	return err == nil && ok
}

// Authorize is Can returning core.ErrForbidden on denial.
func (p *Policy) Authorize(actor user.User, obj, act string, owner ...string) error {
	if p.Can(actor, obj, act, owner...) {
		return nil
	}
	return core.ErrForbidden
}

func isParticipantFunc(args ...interface{}) (interface{}, error) {
	if len(args) != 2 {
		return false, errors.New("isParticipant expects 2 arguments")
	}
	uid, _ := args[0].(string)
	pairKey, _ := args[1].(string)
	return IsParticipant(uid, pairKey), nil
}

// IsParticipant reports whether uid is one side of pairKey.
func IsParticipant(uid, pairKey string) bool {
	if uid == "" {
		return false
	}
	for _, id := range strings.Split(pairKey, PairSeparator) {
		if id == uid {
			return true
		}
	}
	return false
}
