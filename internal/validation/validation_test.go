package validation

import "testing"

func validRegistration() Registration {
	return Registration{
		FirstName:     "Thandi",
		LastName:      "van der Merwe",
		IDNumber:      "9001015009087",
		AccountNumber: "ACC0000001",
		Username:      "thandi_v",
		Password:      "Str0ng!Pass",
	}
}

func TestValidateRegistration(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *Registration)
		fields []string
	}{
		{
			name:   "valid",
			mutate: func(r *Registration) {},
		},
		{
			name:   "short id number",
			mutate: func(r *Registration) { r.IDNumber = "12345" },
			fields: []string{"idNumber"},
		},
		{
			name:   "lowercase account number",
			mutate: func(r *Registration) { r.AccountNumber = "acc0000001" },
			fields: []string{"accountNumber"},
		},
		{
			name: "every field broken",
			mutate: func(r *Registration) {
				*r = Registration{FirstName: "1", LastName: "", IDNumber: "x", AccountNumber: "1", Username: "a", Password: "weak"}
			},
			fields: []string{"firstName", "lastName", "idNumber", "accountNumber", "username", "password"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validRegistration()
			tt.mutate(&r)

			errs := ValidateRegistration(r)
			if len(errs) != len(tt.fields) {
				t.Fatalf("ValidateRegistration() = %v, want fields %v", errs, tt.fields)
			}
			for _, f := range tt.fields {
				if _, ok := errs[f]; !ok {
					t.Fatalf("missing error for field %q in %v", f, errs)
				}
			}
		})
	}
}

func TestPasswordProblem(t *testing.T) {
	tests := []struct {
		password string
		ok       bool
	}{
		{"Str0ng!Pass", true},
		{"short1!", false},
		{"alllowercase1!", false},
		{"ALLUPPERCASE1!", false},
		{"NoDigits!!", false},
		{"NoSpecial123", false},
	}

	for _, tt := range tests {
		t.Run(tt.password, func(t *testing.T) {
			got := PasswordProblem(tt.password) == ""
			if got != tt.ok {
				t.Fatalf("PasswordProblem(%q) ok = %v, want %v", tt.password, got, tt.ok)
			}
		})
	}
}

func TestIsValidSwiftCode(t *testing.T) {
	tests := []struct {
		code  string
		valid bool
	}{
		{"DEUTDEFF", true},
		{"DEUTDEFF500", true},
		{"SBZAZAJJ", true},
		{"DEUTDEF", false},
		{"deutdeff", false},
		{"DEUTDEFF50", false},
		{"1EUTDEFF", false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if got := IsValidSwiftCode(tt.code); got != tt.valid {
				t.Fatalf("IsValidSwiftCode(%q) = %v, want %v", tt.code, got, tt.valid)
			}
		})
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		raw string
		ok  bool
	}{
		{"0.01", true},
		{"1000000", true},
		{"40.00", true},
		{"0.001", false},
		{"0", false},
		{"-5", false},
		{"1000000.01", false},
		{"abc", false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			_, msg := ParseAmount(tt.raw)
			if (msg == "") != tt.ok {
				t.Fatalf("ParseAmount(%q) message = %q, want ok=%v", tt.raw, msg, tt.ok)
			}
		})
	}
}

func TestValidatePayment(t *testing.T) {
	p := Payment{
		Amount:           "250.75",
		Currency:         "USD",
		RecipientName:    "Acme Ltd",
		RecipientBank:    "Deutsche Bank",
		RecipientAccount: "DE89370400440532013000",
		SwiftCode:        "DEUTDEFF",
		Provider:         "SWIFT",
		PaymentReference: "Invoice 42",
	}

	amount, errs := ValidatePayment(p)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if amount.String() != "250.75" {
		t.Fatalf("amount = %s, want 250.75", amount)
	}

	p.Currency = "XYZ"
	p.Provider = "PIGEON"
	_, errs = ValidatePayment(p)
	if _, ok := errs["currency"]; !ok {
		t.Fatalf("expected currency error, got %v", errs)
	}
	if _, ok := errs["provider"]; !ok {
		t.Fatalf("expected provider error, got %v", errs)
	}
}

func TestIsValidTOTPCode(t *testing.T) {
	if !IsValidTOTPCode("012345") {
		t.Fatalf("six digits must be accepted")
	}
	for _, c := range []string{"12345", "1234567", "12a456", "١٢٣٤٥٦"} {
		if IsValidTOTPCode(c) {
			t.Fatalf("IsValidTOTPCode(%q) = true, want false", c)
		}
	}
}

func TestValidateBeneficiary(t *testing.T) {
	valid := Beneficiary{
		Name:          "John Smith",
		BankName:      "Chase",
		AccountNumber: "US1234567890",
		SwiftCode:     "CHASUS33",
		Currency:      "USD",
	}
	if errs := ValidateBeneficiary(valid); len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}

	invalid := valid
	invalid.AccountNumber = "12"
	invalid.Currency = "XYZ"
	errs := ValidateBeneficiary(invalid)
	if _, ok := errs["accountNumber"]; !ok {
		t.Errorf("expected accountNumber error, got %v", errs)
	}
	if _, ok := errs["currency"]; !ok {
		t.Errorf("expected currency error, got %v", errs)
	}
}
