package access

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/foundi/core"
	"github.com/trezcool/foundi/core/user"
)

func TestPolicy_Can(t *testing.T) {
	policy, err := NewPolicy()
	require.NoError(t, err)

	admin := user.User{ID: "a", Role: user.RoleAdmin, Status: user.StatusActive}
	student := user.User{ID: "s", Role: user.RoleStudent, Status: user.StatusActive}
	other := user.User{ID: "o", Role: user.RoleStudent, Status: user.StatusActive}
	pending := user.User{ID: "p", Role: user.RoleStudent, Status: user.StatusPending}

	tests := []struct {
		name  string
		actor user.User
		obj   string
		act   string
		owner []string
		want  bool
	}{
		{name: "admin writes courses", actor: admin, obj: ObjCourse, act: ActWrite, want: true},
		{name: "student cannot write courses", actor: student, obj: ObjCourse, act: ActWrite},
		{name: "student reads courses", actor: student, obj: ObjCourse, act: ActRead, want: true},
		{name: "pending student reads nothing", actor: pending, obj: ObjCourse, act: ActRead},
		{name: "admin writes planning", actor: admin, obj: ObjPlanning, act: ActWrite, want: true},
		{name: "student cannot write planning", actor: student, obj: ObjPlanning, act: ActWrite},
		{name: "author edits own message", actor: student, obj: ObjMessage, act: ActEdit, owner: []string{"s"}, want: true},
		{name: "non-author cannot edit", actor: other, obj: ObjMessage, act: ActEdit, owner: []string{"s"}},
		{name: "admin cannot delete others' message", actor: admin, obj: ObjMessage, act: ActDelete, owner: []string{"s"}},
		{name: "author deletes own message", actor: admin, obj: ObjMessage, act: ActDelete, owner: []string{"a"}, want: true},
		{name: "participant reads conversation", actor: student, obj: ObjConversation, act: ActRead, owner: []string{"a_s"}, want: true},
		{name: "outsider cannot read conversation", actor: other, obj: ObjConversation, act: ActRead, owner: []string{"a_s"}},
		{name: "student reads own payments", actor: student, obj: ObjPayment, act: ActRead, owner: []string{"s"}, want: true},
		{name: "student cannot read others' payments", actor: student, obj: ObjPayment, act: ActRead, owner: []string{"o"}},
		{name: "student cannot toggle payments", actor: student, obj: ObjPayment, act: ActWrite},
		{name: "admin reads usage", actor: admin, obj: ObjUsage, act: ActRead, want: true},
		{name: "student cannot read usage", actor: student, obj: ObjUsage, act: ActRead},
		{name: "anonymous", actor: user.User{}, obj: ObjCourse, act: ActRead},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, policy.Can(tt.actor, tt.obj, tt.act, tt.owner...))
		})
	}

	assert.Equal(t, core.ErrForbidden, policy.Authorize(other, ObjMessage, ActDelete, "s"))
	assert.NoError(t, policy.Authorize(student, ObjMessage, ActDelete, "s"))
}

func TestIsParticipant(t *testing.T) {
	assert.True(t, IsParticipant("a", "a_b"))
	assert.True(t, IsParticipant("b", "a_b"))
	assert.False(t, IsParticipant("c", "a_b"))
	assert.False(t, IsParticipant("", "a_b"))
	assert.False(t, IsParticipant("a", ""))
}
