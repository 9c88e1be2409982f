package user

// Branch is an operating location users belong to.
type Branch struct {
	ID           string `json:"branch_id"`
	Name         string `json:"name"`
	PrimaryColor string `json:"primary_color"`
	Domain       string `json:"domain"`
}

var Branches = []Branch{
	{ID: "br_addison", Name: "Tallman-Addison", PrimaryColor: "#4f46e5", Domain: "addison.tallmanlms.com"},
	{ID: "br_columbus", Name: "Tallman-Columbus", PrimaryColor: "#059669", Domain: "columbus.tallmanlms.com"},
	{ID: "br_lakecity", Name: "Tallman-Lake City", PrimaryColor: "#dc2626", Domain: "lakecity.tallmanlms.com"},
	{ID: "br_mcr", Name: "MCR Core", PrimaryColor: "#7c3aed", Domain: "mcr.tallmanlms.com"},
	{ID: "br_bradley", Name: "Bradley", PrimaryColor: "#ea580c", Domain: "bradley.tallmanlms.com"},
}

func GetBranch(id string) (Branch, bool) {
	for _, b := range Branches {
		if b.ID == id {
			return b, true
		}
	}
	return Branch{}, false
}
