/*
access.go - Role-scoped AccessPolicy

PURPOSE:
  Decides whether a principal may create/read/update/delete/assign a Project,
  Task or TimeEntry, and how list queries are scoped. Every predicate is pure:
  the caller fetches the records, the policy only looks at them.

ROLES:
  ADMINISTRADOR  - everything, everywhere
  COORDINADOR    - everything inside their own area
  COLABORADOR    - their own time, and tasks assigned to them or in their area

  Role is a closed enum. Every predicate switches over all three roles and
  denies anything else, so an unknown role can never be granted access.

PROJECT VISIBILITY:
  Two policies exist for collaborators viewing projects:
    VisibilityArea       - any member of the project's area may view it
    VisibilityAssignment - only explicit assignees, plus the area's general
                           project(s)
  The choice is a deployment setting (timesheet.project_visibility).
*/
package timesheet

import (
	"fmt"
	"strings"
)

// =============================================================================
// ROLE
// =============================================================================

type Role uint8

const (
	RoleAdministrator Role = iota + 1
	RoleCoordinator
	RoleCollaborator
)

// Wire names, as stored and as carried in tokens.
const (
	roleAdministratorName = "ADMINISTRADOR"
	roleCoordinatorName   = "COORDINADOR"
	roleCollaboratorName  = "COLABORADOR"
)

// ParseRole parses a wire role name. Matching is case-insensitive.
func ParseRole(s string) (Role, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case roleAdministratorName:
		return RoleAdministrator, nil
	case roleCoordinatorName:
		return RoleCoordinator, nil
	case roleCollaboratorName:
		return RoleCollaborator, nil
	default:
		return 0, fmt.Errorf("unknown role %q", s)
	}
}

func (r Role) String() string {
	switch r {
	case RoleAdministrator:
		return roleAdministratorName
	case RoleCoordinator:
		return roleCoordinatorName
	case RoleCollaborator:
		return roleCollaboratorName
	default:
		return fmt.Sprintf("Role(%d)", uint8(r))
	}
}

// Valid reports whether r is one of the three known roles.
func (r Role) Valid() bool {
	return r == RoleAdministrator || r == RoleCoordinator || r == RoleCollaborator
}

func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("invalid role %d", uint8(r))
	}
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// =============================================================================
// PRINCIPAL
// =============================================================================

// Principal is the authenticated actor of a request.
type Principal struct {
	UserID UserID
	Email  string
	Role   Role
	AreaID AreaID // empty when the user has no area
}

// InArea reports whether the principal belongs to area. A principal without
// an area belongs to none.
func (p Principal) InArea(area AreaID) bool {
	return p.AreaID != "" && p.AreaID == area
}

// =============================================================================
// POLICY
// =============================================================================

type ProjectVisibility string

const (
	VisibilityArea       ProjectVisibility = "area"
	VisibilityAssignment ProjectVisibility = "assignment"
)

// ParseProjectVisibility validates a configured visibility. Empty means area.
func ParseProjectVisibility(s string) (ProjectVisibility, error) {
	switch ProjectVisibility(s) {
	case "", VisibilityArea:
		return VisibilityArea, nil
	case VisibilityAssignment:
		return VisibilityAssignment, nil
	default:
		return "", fmt.Errorf("unknown project visibility %q", s)
	}
}

// Policy holds the deployment-level access settings.
type Policy struct {
	ProjectVisibility ProjectVisibility
}

func DefaultPolicy() Policy {
	return Policy{ProjectVisibility: VisibilityArea}
}

// -----------------------------------------------------------------------------
// Projects
// -----------------------------------------------------------------------------

func (pol Policy) CanCreateProject(p Principal, area AreaID) bool {
	switch p.Role {
	case RoleAdministrator:
		return true
	case RoleCoordinator:
		return p.InArea(area)
	case RoleCollaborator:
		return false
	}
	return false
}

// CanAccessProject decides visibility. assigned reports whether the principal
// holds an active assignment on the project; it only matters for
// collaborators under VisibilityAssignment.
func (pol Policy) CanAccessProject(p Principal, project Project, assigned bool) bool {
	switch p.Role {
	case RoleAdministrator:
		return true
	case RoleCoordinator:
		return p.InArea(project.AreaID)
	case RoleCollaborator:
		if pol.ProjectVisibility == VisibilityAssignment {
			return assigned || (project.IsGeneral && p.InArea(project.AreaID))
		}
		return assigned || p.InArea(project.AreaID)
	}
	return false
}

func (pol Policy) CanUpdateProject(p Principal, project Project) bool {
	switch p.Role {
	case RoleAdministrator:
		return true
	case RoleCoordinator:
		return p.InArea(project.AreaID)
	case RoleCollaborator:
		return false
	}
	return false
}

func (pol Policy) CanDeleteProject(p Principal, _ Project) bool {
	switch p.Role {
	case RoleAdministrator:
		return true
	case RoleCoordinator, RoleCollaborator:
		return false
	}
	return false
}

func (pol Policy) CanManageProjectMembers(p Principal, project Project) bool {
	switch p.Role {
	case RoleAdministrator:
		return true
	case RoleCoordinator:
		return p.InArea(project.AreaID)
	case RoleCollaborator:
		return false
	}
	return false
}

// -----------------------------------------------------------------------------
// Tasks
// -----------------------------------------------------------------------------

func (pol Policy) CanCreateTask(p Principal, project Project) bool {
	switch p.Role {
	case RoleAdministrator:
		return true
	case RoleCoordinator:
		return p.InArea(project.AreaID)
	case RoleCollaborator:
		return false
	}
	return false
}

func (pol Policy) CanAccessTask(p Principal, task Task) bool {
	switch p.Role {
	case RoleAdministrator:
		return true
	case RoleCoordinator:
		return p.InArea(task.AreaID)
	case RoleCollaborator:
		return isAssignee(p, task) || p.InArea(task.AreaID)
	}
	return false
}

// CanUpdateTask also covers status changes.
func (pol Policy) CanUpdateTask(p Principal, task Task) bool {
	switch p.Role {
	case RoleAdministrator:
		return true
	case RoleCoordinator:
		return p.InArea(task.AreaID)
	case RoleCollaborator:
		return isAssignee(p, task)
	}
	return false
}

// CanAssignTask decides who may set or change a task's assignee.
func (pol Policy) CanAssignTask(p Principal, task Task) bool {
	switch p.Role {
	case RoleAdministrator:
		return true
	case RoleCoordinator:
		return p.InArea(task.AreaID)
	case RoleCollaborator:
		return false
	}
	return false
}

func (pol Policy) CanDeleteTask(p Principal, task Task) bool {
	switch p.Role {
	case RoleAdministrator:
		return true
	case RoleCoordinator:
		return p.InArea(task.AreaID)
	case RoleCollaborator:
		return false
	}
	return false
}

func isAssignee(p Principal, task Task) bool {
	return task.AssignedTo != "" && task.AssignedTo == p.UserID
}

// -----------------------------------------------------------------------------
// Time entries
// -----------------------------------------------------------------------------

// CanCreateTimeEntry decides whether p may log time on task for target.
// A collaborator may only log their own time, on tasks of their area or
// assigned to them; without an area only the assignment counts.
func (pol Policy) CanCreateTimeEntry(p Principal, task Task, target UserID) bool {
	switch p.Role {
	case RoleAdministrator:
		return true
	case RoleCoordinator:
		return p.InArea(task.AreaID)
	case RoleCollaborator:
		if target != p.UserID {
			return false
		}
		if p.AreaID == "" {
			return isAssignee(p, task)
		}
		return p.InArea(task.AreaID) || isAssignee(p, task)
	}
	return false
}

func (pol Policy) CanAccessTimeEntry(p Principal, entry TimeEntry) bool {
	switch p.Role {
	case RoleAdministrator:
		return true
	case RoleCoordinator:
		return p.InArea(entry.AreaID)
	case RoleCollaborator:
		return entry.UserID == p.UserID
	}
	return false
}

func (pol Policy) CanUpdateTimeEntry(p Principal, entry TimeEntry) bool {
	return pol.CanAccessTimeEntry(p, entry)
}

func (pol Policy) CanDeleteTimeEntry(p Principal, entry TimeEntry) bool {
	return pol.CanAccessTimeEntry(p, entry)
}

func (pol Policy) CanApproveTimeEntry(p Principal, entry TimeEntry) bool {
	switch p.Role {
	case RoleAdministrator:
		return true
	case RoleCoordinator:
		return p.InArea(entry.AreaID)
	case RoleCollaborator:
		return false
	}
	return false
}

// CanViewUserTimeEntries decides whether p may list another user's entries.
// Coordinators are allowed here; the list scope keeps them inside their area.
func (pol Policy) CanViewUserTimeEntries(p Principal, user UserID) bool {
	switch p.Role {
	case RoleAdministrator, RoleCoordinator:
		return true
	case RoleCollaborator:
		return user == p.UserID
	}
	return false
}

// -----------------------------------------------------------------------------
// Administration
// -----------------------------------------------------------------------------

func (pol Policy) CanManageSettings(p Principal) bool {
	return p.Role == RoleAdministrator
}

func (pol Policy) CanManageDirectory(p Principal) bool {
	return p.Role == RoleAdministrator
}

// =============================================================================
// LIST SCOPES - applyUserFilters
// =============================================================================

type ScopeKind int

const (
	ScopeNone            ScopeKind = iota // matches nothing
	ScopeAll                              // unconstrained
	ScopeArea                             // area == AreaID
	ScopeOwner                            // owned by / assigned to / member UserID
	ScopeAreaOrOwner                      // area == AreaID OR owner UserID
	ScopeOwnerOrGeneral                   // member UserID OR (general AND area == AreaID)
)

// Scope is a list filter derived from the principal. Stores translate it into
// their own query language; the Allows* methods are the reference semantics.
type Scope struct {
	Kind   ScopeKind
	AreaID AreaID
	UserID UserID
}

// ProjectScope mirrors CanAccessProject. For projects "owner" means an active
// assignment.
func (pol Policy) ProjectScope(p Principal) Scope {
	switch p.Role {
	case RoleAdministrator:
		return Scope{Kind: ScopeAll}
	case RoleCoordinator:
		if p.AreaID == "" {
			return Scope{Kind: ScopeNone}
		}
		return Scope{Kind: ScopeArea, AreaID: p.AreaID}
	case RoleCollaborator:
		if pol.ProjectVisibility == VisibilityAssignment {
			return Scope{Kind: ScopeOwnerOrGeneral, AreaID: p.AreaID, UserID: p.UserID}
		}
		if p.AreaID == "" {
			return Scope{Kind: ScopeOwner, UserID: p.UserID}
		}
		return Scope{Kind: ScopeAreaOrOwner, AreaID: p.AreaID, UserID: p.UserID}
	}
	return Scope{Kind: ScopeNone}
}

// TaskScope mirrors CanAccessTask. For tasks "owner" means the assignee.
func (pol Policy) TaskScope(p Principal) Scope {
	switch p.Role {
	case RoleAdministrator:
		return Scope{Kind: ScopeAll}
	case RoleCoordinator:
		if p.AreaID == "" {
			return Scope{Kind: ScopeNone}
		}
		return Scope{Kind: ScopeArea, AreaID: p.AreaID}
	case RoleCollaborator:
		if p.AreaID == "" {
			return Scope{Kind: ScopeOwner, UserID: p.UserID}
		}
		return Scope{Kind: ScopeAreaOrOwner, AreaID: p.AreaID, UserID: p.UserID}
	}
	return Scope{Kind: ScopeNone}
}

// TimeEntryScope mirrors CanAccessTimeEntry. For entries "owner" is the user
// the hours belong to.
func (pol Policy) TimeEntryScope(p Principal) Scope {
	switch p.Role {
	case RoleAdministrator:
		return Scope{Kind: ScopeAll}
	case RoleCoordinator:
		if p.AreaID == "" {
			return Scope{Kind: ScopeNone}
		}
		return Scope{Kind: ScopeArea, AreaID: p.AreaID}
	case RoleCollaborator:
		return Scope{Kind: ScopeOwner, UserID: p.UserID}
	}
	return Scope{Kind: ScopeNone}
}

// AllowsProject evaluates the scope against a project. member reports an
// active assignment of Scope.UserID on the project.
func (s Scope) AllowsProject(project Project, member bool) bool {
	switch s.Kind {
	case ScopeAll:
		return true
	case ScopeArea:
		return project.AreaID == s.AreaID
	case ScopeOwner:
		return member
	case ScopeAreaOrOwner:
		return member || (s.AreaID != "" && project.AreaID == s.AreaID)
	case ScopeOwnerOrGeneral:
		return member || (project.IsGeneral && s.AreaID != "" && project.AreaID == s.AreaID)
	}
	return false
}

func (s Scope) AllowsTask(task Task) bool {
	switch s.Kind {
	case ScopeAll:
		return true
	case ScopeArea:
		return task.AreaID == s.AreaID
	case ScopeOwner:
		return task.AssignedTo == s.UserID
	case ScopeAreaOrOwner:
		return task.AssignedTo == s.UserID || (s.AreaID != "" && task.AreaID == s.AreaID)
	}
	return false
}

func (s Scope) AllowsTimeEntry(entry TimeEntry) bool {
	switch s.Kind {
	case ScopeAll:
		return true
	case ScopeArea:
		return entry.AreaID == s.AreaID
	case ScopeOwner:
		return entry.UserID == s.UserID
	case ScopeAreaOrOwner:
		return entry.UserID == s.UserID || (s.AreaID != "" && entry.AreaID == s.AreaID)
	}
	return false
}
