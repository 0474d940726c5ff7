package commands

// Canonical command names
const (
	Add                   = "add"
	Clear                 = "clear"
	ExecuteScript         = "execute_script"
	Exit                  = "exit"
	FilterLessThanMembers = "filter_less_than_number_of_participants"
	GroupByEstablishment  = "group_counting_by_establishment_date"
	Help                  = "help"
	HistoryCmd            = "history"
	Info                  = "info"
	PrintDatesDescending  = "print_field_descending_establishment_date"
	RemoveAt              = "remove_at"
	RemoveByID            = "remove_by_id"
	Save                  = "save"
	ServerExit            = "server_exit"
	Show                  = "show"
	Shuffle               = "shuffle"
	Update                = "update"
)

var builtins = []Descriptor{
	{Name: Add, Usage: "{element}", Shape: ShapeForm, Description: "add a new band to the collection"},
	{Name: Clear, Shape: ShapeNone, Description: "remove every band from the collection"},
	{Name: ExecuteScript, Usage: "<file_name>", Shape: ShapeString, Description: "read and execute commands from a script file"},
	{Name: Exit, Shape: ShapeNone, Description: "save the collection and end the session"},
	{Name: FilterLessThanMembers, Usage: "<number_of_participants>", Shape: ShapeString, Description: "show bands with fewer participants than given"},
	{Name: GroupByEstablishment, Shape: ShapeNone, Description: "count bands per establishment date"},
	{Name: Help, Shape: ShapeNone, Description: "list the available commands"},
	{Name: HistoryCmd, Shape: ShapeNone, Description: "show the last 10 commands"},
	{Name: Info, Shape: ShapeNone, Description: "show information about the collection"},
	{Name: PrintDatesDescending, Shape: ShapeNone, Description: "show establishment dates in descending order"},
	{Name: RemoveAt, Usage: "<index>", Shape: ShapeString, Description: "remove the band at the given position"},
	{Name: RemoveByID, Usage: "<id>", Shape: ShapeString, Description: "remove the band with the given id"},
	{Name: Save, Shape: ShapeNone, Description: "write the collection to storage"},
	{Name: ServerExit, Shape: ShapeNone, Description: "save the collection and stop the server"},
	{Name: Show, Shape: ShapeNone, Description: "show every band in the collection"},
	{Name: Shuffle, Shape: ShapeNone, Description: "shuffle the collection"},
	{Name: Update, Usage: "<id> {element}", Shape: ShapeStringAndForm, Description: "update the band with the given id"},
}

var shorthands = map[string]string{
	"exs":    ExecuteScript,
	"fltnop": FilterLessThanMembers,
	"gcbed":  GroupByEstablishment,
	"pfded":  PrintDatesDescending,
	"r_at":   RemoveAt,
	"r_id":   RemoveByID,
}

// NewDefaultRegistry returns a registry holding the full command table
// shared by the console and the server.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	for _, d := range builtins {
		if err := r.Register(d); err != nil {
			panic(err)
		}
	}
	for alias, name := range shorthands {
		if err := r.Alias(alias, name); err != nil {
			panic(err)
		}
	}
	return r
}
