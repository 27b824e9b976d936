package sqlassets

import _ "embed"

//go:embed schema/master/tenants.sql
var TenantsSQL string

//go:embed schema/tenant_space/users.sql
var UsersSQL string
