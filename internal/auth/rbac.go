package auth

import "sort"

// Role identifies a principal's permission context in the marketplace.
type Role string

const (
	RoleBuyer            Role = "buyer"
	RoleVendorOwner      Role = "vendor_owner"
	RoleSupport          Role = "support"
	RoleCatalogModerator Role = "catalog_moderator"
	RoleSuperAdmin       Role = "super_admin"
)

// Permission represents an action that can be authorized.
type Permission string

const (
	PermissionViewCatalog              Permission = "view_catalog"
	PermissionMessageVendors           Permission = "message_vendors"
	PermissionManageVendorProducts     Permission = "manage_vendor_products"
	PermissionManageShopSettings       Permission = "manage_shop_settings"
	PermissionUploadAssets             Permission = "upload_assets"
	PermissionMessageCustomers         Permission = "message_customers"
	PermissionManageVendorVerification Permission = "manage_vendor_verification"
	PermissionManageCommission         Permission = "manage_commission"
	PermissionModerateProducts         Permission = "moderate_products"
	PermissionManageCategories         Permission = "manage_categories"
	PermissionManageAttributeCatalog   Permission = "manage_attribute_catalog"
	PermissionViewAuditLogs            Permission = "view_audit_logs"
	PermissionViewPlatformAnalytics    Permission = "view_platform_analytics"
)

// grants lists what each role may do. The super admin is granted every
// permission that appears anywhere in this table.
var grants = map[Role][]Permission{
	RoleBuyer: {
		PermissionViewCatalog,
		PermissionMessageVendors,
	},
	RoleVendorOwner: {
		PermissionViewCatalog,
		PermissionManageVendorProducts,
		PermissionManageShopSettings,
		PermissionUploadAssets,
		PermissionMessageCustomers,
	},
	RoleSupport: {
		PermissionViewCatalog,
		PermissionManageVendorVerification,
		PermissionViewAuditLogs,
		PermissionViewPlatformAnalytics,
	},
	RoleCatalogModerator: {
		PermissionViewCatalog,
		PermissionModerateProducts,
		PermissionManageCategories,
		PermissionManageAttributeCatalog,
		PermissionViewAuditLogs,
		PermissionViewPlatformAnalytics,
	},
	RoleSuperAdmin: {
		PermissionManageCommission,
	},
}

var roleOrder = []Role{RoleBuyer, RoleVendorOwner, RoleSupport, RoleCatalogModerator, RoleSuperAdmin}

var allowed = make(map[Role]map[Permission]struct{}, len(grants))

var allPermissions []Permission

func init() {
	seen := make(map[Permission]struct{})
	for role, permissions := range grants {
		set := make(map[Permission]struct{}, len(permissions))
		for _, permission := range permissions {
			set[permission] = struct{}{}
			if _, dup := seen[permission]; !dup {
				seen[permission] = struct{}{}
				allPermissions = append(allPermissions, permission)
			}
		}
		allowed[role] = set
	}
	sort.Slice(allPermissions, func(i, j int) bool { return allPermissions[i] < allPermissions[j] })

	for _, permission := range allPermissions {
		allowed[RoleSuperAdmin][permission] = struct{}{}
	}
}

// Roles returns the known roles, least privileged first.
func Roles() []Role {
	return append([]Role(nil), roleOrder...)
}

// Permissions returns every known permission sorted by name.
func Permissions() []Permission {
	return append([]Permission(nil), allPermissions...)
}

// PermissionsFor returns the sorted permissions granted to role.
func PermissionsFor(role Role) []Permission {
	var granted []Permission
	for _, permission := range allPermissions {
		if IsAllowed(role, permission) {
			granted = append(granted, permission)
		}
	}
	return granted
}

func (r Role) String() string {
	return string(r)
}

// IsStaff reports whether the role belongs to the admin console.
func (r Role) IsStaff() bool {
	return r == RoleSupport || r == RoleCatalogModerator || r == RoleSuperAdmin
}

func (p Permission) String() string {
	return string(p)
}

func IsAllowed(role Role, permission Permission) bool {
	_, ok := allowed[role][permission]
	return ok
}
