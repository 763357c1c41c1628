//go:build windows

package device

import (
	"fmt"
	"os/user"

	"golang.org/x/sys/windows"
)

// Elevated reports whether the process token is a member of the built-in
// Administrators group, which raw physical-drive access requires.
func Elevated() (bool, error) {
	//https://github.com/golang/go/issues/28804#issuecomment-505326268
	var sid *windows.SID
	err := windows.AllocateAndInitializeSid(
		&windows.SECURITY_NT_AUTHORITY,
		2,
		windows.SECURITY_BUILTIN_DOMAIN_RID,
		windows.DOMAIN_ALIAS_RID_ADMINS,
		0, 0, 0, 0, 0, 0,
		&sid)
	if err != nil {
		return false, fmt.Errorf("error while checking for elevated permissions: %w", err)
	}
	defer windows.FreeSid(sid)

	token := windows.Token(0)
	member, err := token.IsMember(sid)
	if err != nil {
		return false, fmt.Errorf("error while checking for elevated permissions: %w", err)
	}
	if member {
		return true, nil
	}

	// Distinguish "not an admin at all" from "admin but not elevated" in the
	// error message, since the fix differs (run as administrator vs. log in
	// as one).
	inGroup, err := inAdminGroup()
	if err != nil {
		return false, fmt.Errorf("error while checking admin group membership: %w", err)
	}
	return false, fmt.Errorf("administrator permissions required (elevated: %t, user in admin group: %t)", member, inGroup)
}

func inAdminGroup() (bool, error) {
	u, err := user.Current()
	if err != nil {
		return false, fmt.Errorf("error retrieving current user: %w", err)
	}
	ids, err := u.GroupIds()
	if err != nil {
		return false, fmt.Errorf("error retrieving group ids: %w", err)
	}
	for _, id := range ids {
		// BUILTIN\ADMINISTRATORS
		if id == "S-1-5-32-544" {
			return true, nil
		}
	}
	return false, nil
}
